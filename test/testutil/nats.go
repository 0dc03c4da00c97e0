package testutil

import (
	"net"
	"os/exec"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// FreePort reserves a local TCP port and returns it to the caller.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// StartJetStream runs a throwaway nats-server with JetStream and connects a client to it.
// Params: test handle; the test is skipped when nats-server is not installed.
// Returns: server URL and JetStream context, both torn down by tb.Cleanup.
func StartJetStream(tb testing.TB) (string, nats.JetStreamContext) {
	tb.Helper()

	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	cmd := exec.Command("nats-server", "-js", "-a", "127.0.0.1", "-p", strconv.Itoa(port), "-sd", tb.TempDir())
	if err := cmd.Start(); err != nil {
		tb.Skipf("nats-server is required for integration test: %v", err)
	}
	tb.Cleanup(func() { stopProcess(cmd) })

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	var nc *nats.Conn
	Eventually(tb, 8*time.Second, func() bool {
		nc, err = nats.Connect(url)
		return err == nil
	})
	tb.Cleanup(nc.Close)

	js, err := nc.JetStream()
	if err != nil {
		tb.Fatalf("jetstream: %v", err)
	}
	return url, js
}

// Eventually polls cond until it holds or timeout passes.
// Params: test handle, timeout, and condition.
// Returns: nothing; fails the test on timeout.
func Eventually(tb testing.TB, timeout time.Duration, cond func() bool) {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	tb.Fatalf("condition not met within %s", timeout)
}

func stopProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}
