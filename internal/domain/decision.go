package domain

import (
	"encoding/json"
	"time"
)

// ActionType is the notification kind a rule fires.
// Params: known constants; unknown values are carried verbatim.
// Returns: action identifier persisted on decisions and actions.
type ActionType string

const (
	ActionDataUsageWarning ActionType = "DATA_USAGE_WARNING"
	ActionSpendAlert       ActionType = "SPEND_ALERT"
	ActionContentCooldown  ActionType = "CONTENT_COOLDOWN_SUGGESTION"
	ActionCriticalAlert    ActionType = "CRITICAL_ALERT"
	ActionDataUsageNudge   ActionType = "DATA_USAGE_NUDGE"
	ActionSpendNudge       ActionType = "SPEND_NUDGE"
)

// Rule is one admin-authored threshold policy.
// Params: stable ID, condition text, action, priority (1 is highest), and active flag.
// Returns: read-only rule input for selection.
type Rule struct {
	RuleID      string     `json:"rule_id"`
	Condition   string     `json:"condition"`
	Action      ActionType `json:"action"`
	Priority    int        `json:"priority"`
	IsActive    bool       `json:"is_active"`
	Description string     `json:"description,omitempty"`
}

// Decision is the audit record of one evaluation with a winner.
// Params: sequential ID, user, triggered rule IDs, selected and suppressed actions, state snapshot.
// Returns: immutable append-only record.
type Decision struct {
	DecisionID        string          `json:"decision_id"`
	UserID            string          `json:"user_id"`
	TriggeredRules    []string        `json:"triggered_rules"`
	SelectedAction    ActionType      `json:"selected_action"`
	SuppressedActions []ActionType    `json:"suppressed_actions,omitempty"`
	UserStateSnapshot json.RawMessage `json:"user_state_snapshot"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Action is the outbound notification created for one decision.
// Params: sequential ID, user, action type, and resolved message.
// Returns: immutable notification record.
type Action struct {
	ActionID   string     `json:"action_id"`
	UserID     string     `json:"user_id"`
	ActionType ActionType `json:"action_type"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
}

// DecisionBundle is the result of one successful process call.
// Params: persisted decision/action and the triggered and suppressed rules.
// Returns: payload handed back to callers for display.
type DecisionBundle struct {
	Decision   Decision `json:"decision"`
	Action     Action   `json:"action"`
	Triggered  []Rule   `json:"triggered_rules"`
	Suppressed []Rule   `json:"suppressed_rules"`
}

// Simulation is a dry-run selection result that is never persisted.
type Simulation struct {
	Triggered  []Rule     `json:"triggered_rules"`
	Winner     *Rule      `json:"selected_rule,omitempty"`
	Suppressed []Rule     `json:"suppressed_rules"`
	WouldSend  ActionType `json:"would_send_action,omitempty"`
}

// Summary aggregates operator dashboard counters.
// Params: totals, counts for one UTC day, active rules, and users per risk level.
// Returns: read-only report value.
type Summary struct {
	Day              string              `json:"day"`
	TotalUsers       int64               `json:"total_users"`
	TotalEvents      int64               `json:"total_events"`
	TodayEvents      int64               `json:"today_events"`
	TotalDecisions   int64               `json:"total_decisions"`
	TodayDecisions   int64               `json:"today_decisions"`
	TotalActions     int64               `json:"total_actions"`
	TodayActions     int64               `json:"today_actions"`
	ActiveRules      int64               `json:"active_rules"`
	RiskDistribution map[RiskLevel]int64 `json:"risk_distribution"`
}
