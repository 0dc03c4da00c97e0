package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"decisionengine/internal/domain"
)

var (
	// ErrNotFound indicates absent user state or rule.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate decision/action/rule identifier.
	ErrConflict = errors.New("conflict")
)

// IDKind selects one sequential identifier family.
type IDKind string

const (
	// IDKindDecision covers decision IDs formatted as D-<n>.
	IDKindDecision IDKind = "decision"
	// IDKindAction covers action IDs formatted as A-<n>.
	IDKindAction IDKind = "action"
)

// Prefix returns the textual ID prefix of kind.
// Params: none.
// Returns: "D-" or "A-".
func (k IDKind) Prefix() string {
	if k == IDKindAction {
		return "A-"
	}
	return "D-"
}

// Format renders sequence number n as an identifier of kind.
// Params: sequence number.
// Returns: prefixed identifier.
func (k IDKind) Format(n int64) string {
	return k.Prefix() + strconv.FormatInt(n, 10)
}

// ParseID extracts the numeric suffix of identifier.
// Params: identifier text such as "D-901".
// Returns: sequence number or error for foreign formats.
func (k IDKind) ParseID(id string) (int64, error) {
	suffix, ok := strings.CutPrefix(id, k.Prefix())
	if !ok {
		return 0, fmt.Errorf("id %q lacks prefix %q", id, k.Prefix())
	}
	n, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q: %w", id, err)
	}
	return n, nil
}

// Store provides rule, user state, and decision persistence.
// Params: operations used by the recorder and ingest path.
// Returns: backend persistence behavior.
type Store interface {
	GetActiveRules(ctx context.Context) ([]domain.Rule, error)
	GetUserState(ctx context.Context, userID string) (domain.UserState, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	MaxExistingID(ctx context.Context, kind IDKind) (int64, bool, error)
	SaveDecision(ctx context.Context, decision domain.Decision) error
	SaveAction(ctx context.Context, action domain.Action) error
	ApplyEvent(ctx context.Context, event domain.Event) (domain.UserState, error)
	Close() error
}

// Transactor runs fn atomically when the backend supports it.
// Params: context carrying the transaction into Store calls made by fn.
// Returns: fn error or commit failure.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RecordFilter narrows decision and action history queries.
// Params: optional user ID (empty lists every user) and row limit (>0).
type RecordFilter struct {
	UserID string
	Limit  int
}

func (f RecordFilter) validate() error {
	if f.Limit <= 0 {
		return fmt.Errorf("limit must be >0")
	}
	return nil
}

// Admin exposes rule management and reporting helpers used by operator tooling.
// Params: rule CRUD subset and decision/action reporting queries.
// Returns: backend admin behavior.
type Admin interface {
	ListRules(ctx context.Context) ([]domain.Rule, error)
	CreateRule(ctx context.Context, rule domain.Rule) error
	UpdateRule(ctx context.Context, rule domain.Rule) error
	SetRuleActive(ctx context.Context, ruleID string, active bool) error
	RecentDecisions(ctx context.Context, filter RecordFilter) ([]domain.Decision, error)
	RecentActions(ctx context.Context, filter RecordFilter) ([]domain.Action, error)
	DailyActionCounts(ctx context.Context, day time.Time) (map[domain.ActionType]int64, error)
	Summary(ctx context.Context, day time.Time) (domain.Summary, error)
}
