package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"decisionengine/internal/clock"
	"decisionengine/internal/condition"
	"decisionengine/internal/domain"
	"decisionengine/internal/engine"
	"decisionengine/internal/notifyqueue"
	"decisionengine/internal/permanent"
	"decisionengine/internal/store"
)

// ErrUserListUnavailable reports that ProcessAll could not enumerate users, so no user was processed.
var ErrUserListUnavailable = errors.New("user list unavailable")

const (
	defaultDecisionBaseline int64 = 900
	defaultActionBaseline   int64 = 1000
)

// RecorderOptions wires optional collaborators of one recorder.
// Params: logger, clock, action queue, message catalog, ID baselines, and ingest scoping switch.
// Returns: options consumed by NewRecorder; zero values select defaults.
type RecorderOptions struct {
	Logger           *slog.Logger
	Clock            clock.Clock
	Producer         notifyqueue.Producer
	Messages         *MessageCatalog
	DecisionBaseline int64
	ActionBaseline   int64
	ScopeByCategory  bool
}

// Recorder turns user state into persisted decisions and actions.
// One Process call holds mu from state read to persistence, so ID
// allocation never interleaves between calls on the same recorder.
type Recorder struct {
	mu        sync.Mutex
	store     store.Store
	selector  *engine.Selector
	messages  *MessageCatalog
	producer  notifyqueue.Producer
	clock     clock.Clock
	logger    *slog.Logger
	scoped    bool
	baselines map[store.IDKind]int64
	last      map[store.IDKind]int64
}

// NewRecorder creates recorder over st.
// Params: store and optional collaborators.
// Returns: recorder ready to process users.
func NewRecorder(st store.Store, opts RecorderOptions) (*Recorder, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	messages := opts.Messages
	if messages == nil {
		catalog, err := NewMessageCatalog(nil, logger)
		if err != nil {
			return nil, err
		}
		messages = catalog
	}
	decisionBaseline := opts.DecisionBaseline
	if decisionBaseline == 0 {
		decisionBaseline = defaultDecisionBaseline
	}
	actionBaseline := opts.ActionBaseline
	if actionBaseline == 0 {
		actionBaseline = defaultActionBaseline
	}

	return &Recorder{
		store:    st,
		selector: engine.NewSelector(condition.NewEvaluator(logger)),
		messages: messages,
		producer: opts.Producer,
		clock:    clk,
		logger:   logger,
		scoped:   opts.ScopeByCategory,
		baselines: map[store.IDKind]int64{
			store.IDKindDecision: decisionBaseline,
			store.IDKindAction:   actionBaseline,
		},
		last: make(map[store.IDKind]int64, 2),
	}, nil
}

// Process evaluates active rules for one user and records the winner.
// Params: user ID and category scope (UNKNOWN evaluates every rule).
// Returns: persisted bundle, nil when the user has no state or nothing triggered.
func (r *Recorder) Process(ctx context.Context, userID string, category domain.EventCategory) (*domain.DecisionBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processLocked(ctx, userID, category)
}

func (r *Recorder) processLocked(ctx context.Context, userID string, category domain.EventCategory) (*domain.DecisionBundle, error) {
	state, err := r.store.GetUserState(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("user state not found", "user_id", userID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state for %s: %w", userID, err)
	}

	rules, err := r.store.GetActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active rules: %w", err)
	}

	selection := r.selector.Select(rules, state.EvaluationInput(), category)
	if selection.Winner == nil {
		r.logger.Debug("no rule triggered", "user_id", userID, "category", string(category))
		return nil, nil
	}

	snapshot, err := stateSnapshot(state)
	if err != nil {
		return nil, err
	}

	decisionID, err := r.allocate(ctx, store.IDKindDecision)
	if err != nil {
		return nil, err
	}
	actionID, err := r.allocate(ctx, store.IDKindAction)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	winner := *selection.Winner
	bundle := &domain.DecisionBundle{
		Decision: domain.Decision{
			DecisionID:        decisionID,
			UserID:            userID,
			TriggeredRules:    engine.RuleIDs(selection.Triggered),
			SelectedAction:    winner.Action,
			SuppressedActions: engine.ActionTypes(selection.Suppressed),
			UserStateSnapshot: snapshot,
			CreatedAt:         now,
		},
		Action: domain.Action{
			ActionID:   actionID,
			UserID:     userID,
			ActionType: winner.Action,
			Message:    r.messages.Resolve(winner.Action, state),
			CreatedAt:  now,
		},
		Triggered:  selection.Triggered,
		Suppressed: selection.Suppressed,
	}

	if err := r.persist(ctx, bundle); err != nil {
		return nil, fmt.Errorf("persist decision %s: %w", decisionID, err)
	}
	r.logger.Info("decision recorded",
		"user_id", userID,
		"decision_id", decisionID,
		"action_id", actionID,
		"rule_id", winner.RuleID,
		"action", string(winner.Action),
		"suppressed", len(selection.Suppressed),
	)
	r.publish(ctx, *bundle)
	return bundle, nil
}

// persist writes decision then action, atomically when the store supports transactions.
func (r *Recorder) persist(ctx context.Context, bundle *domain.DecisionBundle) error {
	write := func(ctx context.Context) error {
		if err := r.store.SaveDecision(ctx, bundle.Decision); err != nil {
			return err
		}
		return r.store.SaveAction(ctx, bundle.Action)
	}
	if tx, ok := r.store.(store.Transactor); ok {
		return tx.RunInTx(ctx, write)
	}
	return write(ctx)
}

// publish hands the action to the outbound queue; failures are only logged.
func (r *Recorder) publish(ctx context.Context, bundle domain.DecisionBundle) {
	if r.producer == nil {
		return
	}
	if err := r.producer.Enqueue(ctx, notifyqueue.NewJob(bundle)); err != nil {
		r.logger.Warn("action enqueue failed",
			"action_id", bundle.Action.ActionID,
			"user_id", bundle.Action.UserID,
			"error", err.Error(),
		)
	}
}

// allocate returns the next ID of kind, seeding the counter from the store on first use.
// A number handed out here is never reused, even when the save that follows fails.
func (r *Recorder) allocate(ctx context.Context, kind store.IDKind) (string, error) {
	last, seeded := r.last[kind]
	if !seeded {
		maxID, found, err := r.store.MaxExistingID(ctx, kind)
		if err != nil {
			return "", fmt.Errorf("seed %s id: %w", kind, err)
		}
		last = r.baselines[kind]
		if found {
			last = maxID
		}
	}
	last++
	r.last[kind] = last
	return kind.Format(last), nil
}

// ProcessAll runs Process for every user with stored state.
// Params: category scope applied to every user.
// Returns: recorded bundles and joined per-user errors; one failure never stops the batch.
// ErrUserListUnavailable is returned when the batch could not start.
func (r *Recorder) ProcessAll(ctx context.Context, category domain.EventCategory) ([]domain.DecisionBundle, error) {
	userIDs, err := r.store.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserListUnavailable, err)
	}

	var (
		bundles []domain.DecisionBundle
		errs    []error
	)
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		bundle, err := r.Process(ctx, userID, category)
		if err != nil {
			r.logger.Error("process user failed", "user_id", userID, "error", err.Error())
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		if bundle != nil {
			bundles = append(bundles, *bundle)
		}
	}
	return bundles, errors.Join(errs...)
}

// Simulate runs selection against active rules without allocating IDs or persisting.
// Params: evaluation input map and category scope.
// Returns: triggered rules, winner, and the action that would be sent.
func (r *Recorder) Simulate(ctx context.Context, state map[string]float64, category domain.EventCategory) (domain.Simulation, error) {
	rules, err := r.store.GetActiveRules(ctx)
	if err != nil {
		return domain.Simulation{}, fmt.Errorf("load active rules: %w", err)
	}
	selection := r.selector.Select(rules, state, category)
	simulation := domain.Simulation{
		Triggered:  selection.Triggered,
		Winner:     selection.Winner,
		Suppressed: selection.Suppressed,
	}
	if selection.Winner != nil {
		simulation.WouldSend = selection.Winner.Action
	}
	return simulation, nil
}

// Push applies one ingested event to cumulative state and re-evaluates the user.
// Params: event; it is re-validated before touching the store.
// Returns: permanent error for invalid or replayed events, or retryable store error.
// Once the event is applied a decision failure is logged, not returned.
func (r *Recorder) Push(ctx context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushLocked(ctx, event)
}

func (r *Recorder) pushLocked(ctx context.Context, event domain.Event) error {
	if err := event.Normalize(); err != nil {
		return permanent.Mark(permanent.ReasonInvalid, fmt.Errorf("event %s: %w", event.EventID, err))
	}
	if _, err := r.store.ApplyEvent(ctx, event); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return permanent.Mark(permanent.ReasonReplayed, err)
		}
		return fmt.Errorf("apply event %s: %w", event.EventID, err)
	}
	category := domain.CategoryUnknown
	if r.scoped {
		category = event.Category
	}
	if _, err := r.processLocked(ctx, event.UserID, category); err != nil {
		r.logger.Error("decision failed after event applied",
			"event_id", event.EventID,
			"user_id", event.UserID,
			"error", err.Error(),
		)
	}
	return nil
}

// PushBatch applies events in order; invalid and replayed events are skipped with a warning.
// Params: events.
// Returns: first retryable error; events before it stay applied.
func (r *Recorder) PushBatch(ctx context.Context, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range events {
		err := r.pushLocked(ctx, event)
		if err == nil {
			continue
		}
		if reason, ok := permanent.ReasonOf(err); ok {
			r.logger.Warn("event skipped",
				"event_id", event.EventID,
				"user_id", event.UserID,
				"reason", string(reason),
				"error", err.Error(),
			)
			continue
		}
		return err
	}
	return nil
}

// stateSnapshot encodes the evaluation input with identity and risk level.
func stateSnapshot(state domain.UserState) (json.RawMessage, error) {
	snapshot := make(map[string]any, 6)
	for field, value := range state.EvaluationInput() {
		snapshot[field] = value
	}
	snapshot["user_id"] = state.UserID
	snapshot["risk_level"] = string(state.RiskLevel)
	snapshot["updated_at"] = state.UpdatedAt.UTC().Format(time.RFC3339Nano)
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode state snapshot: %w", err)
	}
	return raw, nil
}
