package engine

import (
	"sort"

	"decisionengine/internal/condition"
	"decisionengine/internal/domain"
)

// Selection is the outcome of one rule selection pass.
// Params: triggered rules by ascending priority, winner, and suppressed remainder.
// Returns: zero value when nothing triggered.
type Selection struct {
	Triggered  []domain.Rule
	Winner     *domain.Rule
	Suppressed []domain.Rule
}

// Selector picks the winning rule for one user state.
// Params: condition evaluator shared across calls.
// Returns: stateless selector safe for concurrent use.
type Selector struct {
	evaluator *condition.Evaluator
}

// NewSelector creates selector bound to evaluator.
// Params: evaluator (non-logging default when nil).
// Returns: selector instance.
func NewSelector(evaluator *condition.Evaluator) *Selector {
	if evaluator == nil {
		evaluator = condition.NewEvaluator(nil)
	}
	return &Selector{evaluator: evaluator}
}

// Select evaluates rules against state and resolves conflicts by priority.
// Params: rules in storage order, evaluation input, and optional event category.
// Returns: triggered rules, single winner, and suppressed rules.
func (s *Selector) Select(rules []domain.Rule, state map[string]float64, category domain.EventCategory) Selection {
	triggered := make([]domain.Rule, 0, len(rules))
	for _, rule := range rules {
		if !IsRelevant(rule.Condition, category) {
			continue
		}
		if s.evaluator.Evaluate(rule.Condition, state) {
			triggered = append(triggered, rule)
		}
	}
	if len(triggered) == 0 {
		return Selection{}
	}

	// Ties keep storage order.
	sort.SliceStable(triggered, func(i, j int) bool {
		return triggered[i].Priority < triggered[j].Priority
	})

	winner := triggered[0]
	return Selection{
		Triggered:  triggered,
		Winner:     &winner,
		Suppressed: triggered[1:],
	}
}

// ActionTypes lists action types of rules in order.
// Params: rules.
// Returns: action types or nil for empty input.
func ActionTypes(rules []domain.Rule) []domain.ActionType {
	if len(rules) == 0 {
		return nil
	}
	out := make([]domain.ActionType, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rule.Action)
	}
	return out
}

// RuleIDs lists rule IDs in order.
// Params: rules.
// Returns: rule IDs.
func RuleIDs(rules []domain.Rule) []string {
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rule.RuleID)
	}
	return out
}
