package permanent

import (
	"errors"
	"fmt"
	"testing"
)

func TestMarkKeepsCauseAndReason(t *testing.T) {
	t.Parallel()

	cause := errors.New("event E-1 already applied")
	err := fmt.Errorf("push: %w", Mark(ReasonReplayed, cause))

	if !Is(err) {
		t.Fatalf("expected permanent error")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause must stay reachable")
	}
	reason, ok := ReasonOf(err)
	if !ok || reason != ReasonReplayed {
		t.Fatalf("unexpected reason %q", reason)
	}
	if err.Error() != "push: event rejected (replayed): event E-1 already applied" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestMarkNilAndPlainErrors(t *testing.T) {
	t.Parallel()

	if Mark(ReasonInvalid, nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
	if Is(errors.New("database unavailable")) || Is(nil) {
		t.Fatalf("plain errors are retryable")
	}
}
