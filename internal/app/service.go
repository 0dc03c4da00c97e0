package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"decisionengine/internal/clock"
	"decisionengine/internal/config"
	"decisionengine/internal/ingest"
	"decisionengine/internal/logging"
	"decisionengine/internal/notifyqueue"
	"decisionengine/internal/store"
)

const singleModeOutboxLimit = 1000

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable decision service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	store     store.Store
	admin     store.Admin
	recorder  *Recorder
	producer  notifyqueue.Producer
	outbox    *notifyqueue.MemoryProducer
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds service instance from config source.
// Params: startup context, config source, and clock implementation.
// Returns: initialized service or setup error.
func NewService(ctx context.Context, source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log, cfg.Service.Name)
	if err != nil {
		return nil, err
	}
	return newServiceFromConfig(ctx, cfg, logger, closeLog, clk)
}

func newServiceFromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger, closeLog func(), clk clock.Clock) (*Service, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		clock:    clk,
	}

	st, err := buildStore(ctx, cfg, clk, logger)
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.store = st
	admin, ok := st.(store.Admin)
	if !ok {
		service.cleanupInitResources()
		return nil, fmt.Errorf("store %T does not support rule administration", st)
	}
	service.admin = admin

	if err := service.buildProducer(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	messages, err := NewMessageCatalog(cfg.Messages, logger)
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	recorder, err := NewRecorder(st, RecorderOptions{
		Logger:           logger,
		Clock:            clk,
		Producer:         service.producer,
		Messages:         messages,
		DecisionBaseline: cfg.IDs.DecisionBaseline,
		ActionBaseline:   cfg.IDs.ActionBaseline,
		ScopeByCategory:  cfg.Service.ScopeByCategory,
	})
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.recorder = recorder

	service.httpSrv = &http.Server{
		Addr:              cfg.Ingest.HTTP.Listen,
		Handler:           service.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := service.buildNATSSubscriber(ctx); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	return service, nil
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.Ingest.HTTP.Listen, "mode", s.cfg.Service.Mode)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.logger.Error("action queue producer close failed", "error", err.Error())
			markErr(fmt.Errorf("action queue producer close: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
		markErr(fmt.Errorf("store close: %w", err))
	}
	s.logger.Info("service stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.producer != nil {
		_ = s.producer.Close()
		s.producer = nil
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildProducer selects the outbound action queue for the configured mode.
// Params: none.
// Returns: setup error.
func (s *Service) buildProducer() error {
	if isSingleMode(s.cfg) {
		s.outbox = notifyqueue.NewMemoryProducer(singleModeOutboxLimit)
		s.producer = s.outbox
		return nil
	}
	if !s.cfg.Queue.Enabled {
		return nil
	}
	producer, err := notifyqueue.NewNATSProducer(s.cfg.Queue)
	if err != nil {
		return err
	}
	s.producer = producer
	return nil
}

// buildNATSSubscriber starts NATS ingest when enabled.
// Params: lifecycle context handed to the subscriber.
// Returns: initialization error.
func (s *Service) buildNATSSubscriber(ctx context.Context) error {
	if isSingleMode(s.cfg) || !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(context.WithoutCancel(ctx), s.cfg.Ingest.NATS, s.recorder, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

// buildStore creates the persistence backend and seeds configured rules.
// Params: startup context, config snapshot, clock, and logger.
// Returns: selected store.
func buildStore(ctx context.Context, cfg config.Config, clk clock.Clock, logger *slog.Logger) (store.Store, error) {
	if isSingleMode(cfg) {
		memory := store.NewMemoryStore(clk.Now)
		for _, rule := range cfg.Rule {
			if err := memory.PutRule(rule.DomainRule()); err != nil {
				return nil, fmt.Errorf("seed rule %s: %w", rule.ID, err)
			}
		}
		return memory, nil
	}

	pool, err := store.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	postgres := store.NewPostgresStore(pool, clk.Now)
	for _, rule := range cfg.Rule {
		err := postgres.CreateRule(ctx, rule.DomainRule())
		switch {
		case errors.Is(err, store.ErrConflict):
			logger.Debug("seed rule already present", "rule_id", rule.ID)
		case err != nil:
			pool.Close()
			return nil, fmt.Errorf("seed rule %s: %w", rule.ID, err)
		}
	}
	return postgres, nil
}

func isSingleMode(cfg config.Config) bool {
	return config.NormalizeServiceMode(cfg.Service.Mode) == config.ServiceModeSingle
}
