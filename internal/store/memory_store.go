package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"decisionengine/internal/clock"
	"decisionengine/internal/domain"
)

// MemoryStore keeps rules, user state, and records in process memory for single-instance mode.
// Params: in-memory maps guarded by one RWMutex and injected clock.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	rules     map[string]domain.Rule
	states    map[string]domain.UserState
	events    []domain.Event
	eventIDs  map[string]struct{}
	decisions []domain.Decision
	actions   []domain.Action
}

// NewMemoryStore creates in-memory store.
// Params: now function (defaults to time.Now when nil).
// Returns: initialized in-memory store.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:      now,
		rules:    make(map[string]domain.Rule),
		states:   make(map[string]domain.UserState),
		eventIDs: make(map[string]struct{}),
	}
}

// PutRule inserts or replaces one rule by ID.
// Params: rule definition.
// Returns: error for empty rule ID.
func (s *MemoryStore) PutRule(rule domain.Rule) error {
	if strings.TrimSpace(rule.RuleID) == "" {
		return fmt.Errorf("rule_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.RuleID] = rule
	return nil
}

// PutUserState inserts or replaces one user state snapshot.
// Params: state with non-empty user ID.
// Returns: error for empty user ID.
func (s *MemoryStore) PutUserState(state domain.UserState) error {
	if strings.TrimSpace(state.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.UserID] = state
	return nil
}

// GetActiveRules lists active rules ordered by priority, then rule ID.
// Params: none.
// Returns: rule copies.
func (s *MemoryStore) GetActiveRules(_ context.Context) ([]domain.Rule, error) {
	s.mu.RLock()
	out := make([]domain.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.IsActive {
			out = append(out, rule)
		}
	}
	s.mu.RUnlock()
	sortRules(out)
	return out, nil
}

// sortRules orders rules by ascending priority, then rule ID.
func sortRules(rules []domain.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].RuleID < rules[j].RuleID
	})
}

// GetUserState returns cumulative state for user.
// Params: user ID.
// Returns: state or ErrNotFound.
func (s *MemoryStore) GetUserState(_ context.Context, userID string) (domain.UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[userID]
	if !ok {
		return domain.UserState{}, ErrNotFound
	}
	return state, nil
}

// ListUserIDs lists users with stored state in ascending order.
// Params: none.
// Returns: user IDs.
func (s *MemoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// MaxExistingID returns the largest persisted sequence number of kind.
// Params: identifier family; IDs not matching the prefix are ignored.
// Returns: maximum number and true, or false when none exist.
func (s *MemoryStore) MaxExistingID(_ context.Context, kind IDKind) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		maxID int64
		found bool
	)
	consider := func(id string) {
		n, err := kind.ParseID(id)
		if err != nil {
			return
		}
		if !found || n > maxID {
			maxID = n
			found = true
		}
	}
	switch kind {
	case IDKindDecision:
		for _, decision := range s.decisions {
			consider(decision.DecisionID)
		}
	case IDKindAction:
		for _, action := range s.actions {
			consider(action.ActionID)
		}
	default:
		return 0, false, fmt.Errorf("unsupported id kind %q", kind)
	}
	return maxID, found, nil
}

// SaveDecision appends one decision record.
// Params: decision with unique ID.
// Returns: ErrConflict for duplicate ID.
func (s *MemoryStore) SaveDecision(_ context.Context, decision domain.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.decisions {
		if existing.DecisionID == decision.DecisionID {
			return fmt.Errorf("decision %s: %w", decision.DecisionID, ErrConflict)
		}
	}
	s.decisions = append(s.decisions, decision)
	return nil
}

// SaveAction appends one action record.
// Params: action with unique ID.
// Returns: ErrConflict for duplicate ID.
func (s *MemoryStore) SaveAction(_ context.Context, action domain.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.actions {
		if existing.ActionID == action.ActionID {
			return fmt.Errorf("action %s: %w", action.ActionID, ErrConflict)
		}
	}
	s.actions = append(s.actions, action)
	return nil
}

// ApplyEvent records event and folds it into the user's cumulative state.
// Params: normalized event; events without ID are never deduplicated.
// Returns: updated state, or ErrConflict when the event ID was already applied.
func (s *MemoryStore) ApplyEvent(_ context.Context, event domain.Event) (domain.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.EventID != "" {
		if _, seen := s.eventIDs[event.EventID]; seen {
			return domain.UserState{}, fmt.Errorf("event %s: %w", event.EventID, ErrConflict)
		}
		s.eventIDs[event.EventID] = struct{}{}
	}
	current, ok := s.states[event.UserID]
	if !ok {
		current = domain.UserState{UserID: event.UserID}
	}
	now := s.now()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	updated := current.Apply(event, now)
	s.states[event.UserID] = updated
	s.events = append(s.events, event)
	return updated, nil
}

// ListRules lists all rules ordered by priority, then rule ID.
// Params: none.
// Returns: rule copies.
func (s *MemoryStore) ListRules(_ context.Context) ([]domain.Rule, error) {
	s.mu.RLock()
	out := make([]domain.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule)
	}
	s.mu.RUnlock()
	sortRules(out)
	return out, nil
}

// CreateRule inserts one rule.
// Params: rule with unique ID.
// Returns: ErrConflict when the ID already exists.
func (s *MemoryStore) CreateRule(_ context.Context, rule domain.Rule) error {
	if strings.TrimSpace(rule.RuleID) == "" {
		return fmt.Errorf("rule_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.RuleID]; exists {
		return fmt.Errorf("rule %s: %w", rule.RuleID, ErrConflict)
	}
	s.rules[rule.RuleID] = rule
	return nil
}

// UpdateRule replaces condition, action, priority, active flag, and description of one rule.
// Params: rule carrying the ID to update.
// Returns: ErrNotFound for unknown rule.
func (s *MemoryStore) UpdateRule(_ context.Context, rule domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.RuleID]; !ok {
		return fmt.Errorf("rule %s: %w", rule.RuleID, ErrNotFound)
	}
	s.rules[rule.RuleID] = rule
	return nil
}

// SetRuleActive toggles the active flag of one rule.
// Params: rule ID and new flag value.
// Returns: ErrNotFound for unknown rule.
func (s *MemoryStore) SetRuleActive(_ context.Context, ruleID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	rule.IsActive = active
	s.rules[ruleID] = rule
	return nil
}

// RecentDecisions lists newest decisions first, optionally for one user.
// Params: filter with optional user ID and limit (>0).
// Returns: decision copies.
func (s *MemoryStore) RecentDecisions(_ context.Context, filter RecordFilter) ([]domain.Decision, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Decision, 0, min(filter.Limit, len(s.decisions)))
	for i := len(s.decisions) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		if filter.UserID != "" && s.decisions[i].UserID != filter.UserID {
			continue
		}
		out = append(out, s.decisions[i])
	}
	return out, nil
}

// RecentActions lists newest actions first, optionally for one user.
// Params: filter with optional user ID and limit (>0).
// Returns: action copies.
func (s *MemoryStore) RecentActions(_ context.Context, filter RecordFilter) ([]domain.Action, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Action, 0, min(filter.Limit, len(s.actions)))
	for i := len(s.actions) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		if filter.UserID != "" && s.actions[i].UserID != filter.UserID {
			continue
		}
		out = append(out, s.actions[i])
	}
	return out, nil
}

// DailyActionCounts counts actions per type created on the UTC day containing day.
// Params: any instant within the day.
// Returns: counts keyed by action type.
func (s *MemoryStore) DailyActionCounts(_ context.Context, day time.Time) (map[domain.ActionType]int64, error) {
	start, end := clock.DayBounds(day)
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.ActionType]int64)
	for _, action := range s.actions {
		if action.CreatedAt.Before(start) || !action.CreatedAt.Before(end) {
			continue
		}
		counts[action.ActionType]++
	}
	return counts, nil
}

// Summary counts users, events, records, and active rules; day-scoped counts use the UTC day of day.
// Params: any instant within the reported day.
// Returns: dashboard summary.
func (s *MemoryStore) Summary(_ context.Context, day time.Time) (domain.Summary, error) {
	start, end := clock.DayBounds(day)
	within := func(at time.Time) bool {
		return !at.Before(start) && at.Before(end)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := domain.Summary{
		Day:              start.Format(time.DateOnly),
		TotalUsers:       int64(len(s.states)),
		TotalEvents:      int64(len(s.events)),
		TotalDecisions:   int64(len(s.decisions)),
		TotalActions:     int64(len(s.actions)),
		RiskDistribution: make(map[domain.RiskLevel]int64),
	}
	for _, event := range s.events {
		if within(event.Timestamp) {
			summary.TodayEvents++
		}
	}
	for _, decision := range s.decisions {
		if within(decision.CreatedAt) {
			summary.TodayDecisions++
		}
	}
	for _, action := range s.actions {
		if within(action.CreatedAt) {
			summary.TodayActions++
		}
	}
	for _, rule := range s.rules {
		if rule.IsActive {
			summary.ActiveRules++
		}
	}
	for _, state := range s.states {
		summary.RiskDistribution[state.RiskLevel]++
	}
	return summary, nil
}

// Decisions returns persisted decisions in insertion order.
// Params: none.
// Returns: copy of decision list.
func (s *MemoryStore) Decisions() []domain.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Decision(nil), s.decisions...)
}

// Actions returns persisted actions in insertion order.
// Params: none.
// Returns: copy of action list.
func (s *MemoryStore) Actions() []domain.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Action(nil), s.actions...)
}

// EventCount returns number of applied events.
func (s *MemoryStore) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
