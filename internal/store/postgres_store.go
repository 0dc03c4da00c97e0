package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"decisionengine/internal/clock"
	"decisionengine/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

const (
	tableRules     = "rules"
	tableUserState = "user_state"
	tableEvents    = "events"
	tableDecisions = "decisions"
	tableActions   = "actions"
)

var (
	ruleColumns = []string{"rule_id", "condition", "action", "priority", "is_active", "COALESCE(description, '')"}

	stateColumns = []string{
		"user_id", "internet_today_gb", "spend_today_try", "content_minutes_today", "risk_level", "updated_at",
	}

	decisionColumns = []string{
		"decision_id", "user_id", "triggered_rules", "selected_action", "suppressed_actions", "user_state_snapshot", "created_at",
	}

	actionColumns = []string{"action_id", "user_id", "action_type", "message", "created_at"}
)

// PostgresStore persists rules, user state, events, decisions, and actions in PostgreSQL.
// Params: transaction-capable DB handle and clock for state updates.
// Returns: Store, Transactor, and Admin implementation.
type PostgresStore struct {
	db  DB
	tx  *TxManager
	sb  sq.StatementBuilderType
	now func() time.Time
}

// NewPostgresStore creates store over db.
// Params: pool (or mock) and now function (defaults to time.Now when nil).
// Returns: initialized store.
func NewPostgresStore(db DB, now func() time.Time) *PostgresStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{
		db:  db,
		tx:  NewTxManager(db),
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: now,
	}
}

// RunInTx executes fn within one database transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.RunInTx(ctx, fn)
}

// GetActiveRules lists active rules ordered by priority, then rule ID.
// Params: context.
// Returns: rules or query error.
func (s *PostgresStore) GetActiveRules(ctx context.Context) ([]domain.Rule, error) {
	query := s.sb.Select(ruleColumns...).
		From(tableRules).
		Where(sq.Eq{"is_active": true}).
		OrderBy("priority ASC", "rule_id ASC")
	return s.queryRules(ctx, query)
}

// ListRules lists all rules ordered by priority, then rule ID.
// Params: context.
// Returns: rules or query error.
func (s *PostgresStore) ListRules(ctx context.Context) ([]domain.Rule, error) {
	query := s.sb.Select(ruleColumns...).
		From(tableRules).
		OrderBy("priority ASC", "rule_id ASC")
	return s.queryRules(ctx, query)
}

func (s *PostgresStore) queryRules(ctx context.Context, query sq.SelectBuilder) ([]domain.Rule, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rules query: %w", err)
	}
	rows, err := QuerierFromCtx(ctx, s.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	rules, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Rule, error) {
		var (
			rule   domain.Rule
			action string
		)
		if err := row.Scan(&rule.RuleID, &rule.Condition, &action, &rule.Priority, &rule.IsActive, &rule.Description); err != nil {
			return domain.Rule{}, err
		}
		rule.Action = domain.ActionType(action)
		return rule, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan rules: %w", err)
	}
	return rules, nil
}

// CreateRule inserts one rule.
// Params: rule with unique ID.
// Returns: ErrConflict when the ID already exists.
func (s *PostgresStore) CreateRule(ctx context.Context, rule domain.Rule) error {
	sql, args, err := s.sb.Insert(tableRules).
		Columns("rule_id", "condition", "action", "priority", "is_active", "description").
		Values(rule.RuleID, rule.Condition, string(rule.Action), rule.Priority, rule.IsActive, rule.Description).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rule insert: %w", err)
	}
	_, err = QuerierFromCtx(ctx, s.db).Exec(ctx, sql, args...)
	return mapError(err, "rule", rule.RuleID)
}

// UpdateRule replaces condition, action, priority, active flag, and description of one rule.
// Params: rule carrying the ID to update.
// Returns: ErrNotFound when no rule matched.
func (s *PostgresStore) UpdateRule(ctx context.Context, rule domain.Rule) error {
	sql, args, err := s.sb.Update(tableRules).
		Set("condition", rule.Condition).
		Set("action", string(rule.Action)).
		Set("priority", rule.Priority).
		Set("is_active", rule.IsActive).
		Set("description", rule.Description).
		Where(sq.Eq{"rule_id": rule.RuleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rule update: %w", err)
	}
	tag, err := QuerierFromCtx(ctx, s.db).Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err, "rule", rule.RuleID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s: %w", rule.RuleID, ErrNotFound)
	}
	return nil
}

// SetRuleActive toggles the active flag of one rule.
// Params: rule ID and new flag value.
// Returns: ErrNotFound when no rule matched.
func (s *PostgresStore) SetRuleActive(ctx context.Context, ruleID string, active bool) error {
	sql, args, err := s.sb.Update(tableRules).
		Set("is_active", active).
		Where(sq.Eq{"rule_id": ruleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rule update: %w", err)
	}
	tag, err := QuerierFromCtx(ctx, s.db).Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err, "rule", ruleID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

// GetUserState returns cumulative state for user.
// Params: user ID.
// Returns: state or ErrNotFound.
func (s *PostgresStore) GetUserState(ctx context.Context, userID string) (domain.UserState, error) {
	return s.loadState(ctx, userID, false)
}

func (s *PostgresStore) loadState(ctx context.Context, userID string, forUpdate bool) (domain.UserState, error) {
	query := s.sb.Select(stateColumns...).
		From(tableUserState).
		Where(sq.Eq{"user_id": userID})
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return domain.UserState{}, fmt.Errorf("build state query: %w", err)
	}

	var (
		state domain.UserState
		risk  string
	)
	err = QuerierFromCtx(ctx, s.db).QueryRow(ctx, sql, args...).Scan(
		&state.UserID,
		&state.InternetTodayGB,
		&state.SpendTodayTRY,
		&state.ContentMinutesToday,
		&risk,
		&state.UpdatedAt,
	)
	if err != nil {
		return domain.UserState{}, mapError(err, "user_state", userID)
	}
	state.RiskLevel = domain.RiskLevel(risk)
	return state, nil
}

// ListUserIDs lists users with stored state in ascending order.
// Params: context.
// Returns: user IDs.
func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	sql, args, err := s.sb.Select("user_id").From(tableUserState).OrderBy("user_id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user list query: %w", err)
	}
	rows, err := QuerierFromCtx(ctx, s.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query user ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan user ids: %w", err)
	}
	return ids, nil
}

// MaxExistingID returns the largest persisted numeric suffix of kind.
// Params: identifier family; IDs with non-numeric suffixes are ignored.
// Returns: maximum and true, or false for an empty table.
func (s *PostgresStore) MaxExistingID(ctx context.Context, kind IDKind) (int64, bool, error) {
	var table, column string
	switch kind {
	case IDKindDecision:
		table, column = tableDecisions, "decision_id"
	case IDKindAction:
		table, column = tableActions, "action_id"
	default:
		return 0, false, fmt.Errorf("unsupported id kind %q", kind)
	}

	sql, args, err := s.sb.Select(fmt.Sprintf("COALESCE(MAX(CAST(SUBSTRING(%s FROM 3) AS BIGINT)), -1)", column)).
		From(table).
		Where(sq.Expr(column+" ~ ?", "^"+kind.Prefix()+"[0-9]+$")).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build max id query: %w", err)
	}

	var maxID int64
	if err := QuerierFromCtx(ctx, s.db).QueryRow(ctx, sql, args...).Scan(&maxID); err != nil {
		return 0, false, fmt.Errorf("query max %s id: %w", kind, err)
	}
	if maxID < 0 {
		return 0, false, nil
	}
	return maxID, true, nil
}

// SaveDecision inserts one decision record.
// Params: decision with unique ID.
// Returns: ErrConflict for duplicate ID.
func (s *PostgresStore) SaveDecision(ctx context.Context, decision domain.Decision) error {
	sql, args, err := s.sb.Insert(tableDecisions).
		Columns(decisionColumns...).
		Values(
			decision.DecisionID,
			decision.UserID,
			decision.TriggeredRules,
			string(decision.SelectedAction),
			actionTypeStrings(decision.SuppressedActions),
			string(decision.UserStateSnapshot),
			decision.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build decision insert: %w", err)
	}
	_, err = QuerierFromCtx(ctx, s.db).Exec(ctx, sql, args...)
	return mapError(err, "decision", decision.DecisionID)
}

// SaveAction inserts one action record.
// Params: action with unique ID.
// Returns: ErrConflict for duplicate ID.
func (s *PostgresStore) SaveAction(ctx context.Context, action domain.Action) error {
	sql, args, err := s.sb.Insert(tableActions).
		Columns(actionColumns...).
		Values(action.ActionID, action.UserID, string(action.ActionType), action.Message, action.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build action insert: %w", err)
	}
	_, err = QuerierFromCtx(ctx, s.db).Exec(ctx, sql, args...)
	return mapError(err, "action", action.ActionID)
}

// ApplyEvent stores event and folds it into the user's state in one transaction.
// Params: normalized event with event ID.
// Returns: updated state, or ErrConflict when the event ID was already applied.
func (s *PostgresStore) ApplyEvent(ctx context.Context, event domain.Event) (domain.UserState, error) {
	var updated domain.UserState
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.now()
		occurredAt := event.Timestamp
		if occurredAt.IsZero() {
			occurredAt = now
		}

		sql, args, err := s.sb.Insert(tableEvents).
			Columns("event_id", "user_id", "service", "event_type", "value", "unit", "event_time").
			Values(event.EventID, event.UserID, event.Service, string(event.Category), event.Value, event.Unit, occurredAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("build event insert: %w", err)
		}
		if _, err := QuerierFromCtx(ctx, s.db).Exec(ctx, sql, args...); err != nil {
			return mapError(err, "event", event.EventID)
		}

		current, err := s.loadState(ctx, event.UserID, true)
		switch {
		case errors.Is(err, ErrNotFound):
			current = domain.UserState{UserID: event.UserID}
		case err != nil:
			return err
		}
		updated = current.Apply(event, now)

		sql, args, err = s.sb.Insert(tableUserState).
			Columns(stateColumns...).
			Values(
				updated.UserID,
				updated.InternetTodayGB,
				updated.SpendTodayTRY,
				updated.ContentMinutesToday,
				string(updated.RiskLevel),
				updated.UpdatedAt,
			).
			Suffix("ON CONFLICT (user_id) DO UPDATE SET " +
				"internet_today_gb = EXCLUDED.internet_today_gb, " +
				"spend_today_try = EXCLUDED.spend_today_try, " +
				"content_minutes_today = EXCLUDED.content_minutes_today, " +
				"risk_level = EXCLUDED.risk_level, " +
				"updated_at = EXCLUDED.updated_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("build state upsert: %w", err)
		}
		if _, err := QuerierFromCtx(ctx, s.db).Exec(ctx, sql, args...); err != nil {
			return mapError(err, "user_state", event.UserID)
		}
		return nil
	})
	if err != nil {
		return domain.UserState{}, err
	}
	return updated, nil
}

// RecentDecisions lists newest decisions first, optionally for one user.
// Params: filter with optional user ID and limit (>0).
// Returns: decisions or query error.
func (s *PostgresStore) RecentDecisions(ctx context.Context, filter RecordFilter) ([]domain.Decision, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	query := s.sb.Select(decisionColumns...).From(tableDecisions)
	if filter.UserID != "" {
		query = query.Where(sq.Eq{"user_id": filter.UserID})
	}
	sql, args, err := query.
		OrderBy("created_at DESC", "decision_id DESC").
		Limit(uint64(filter.Limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build decisions query: %w", err)
	}
	rows, err := QuerierFromCtx(ctx, s.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	decisions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Decision, error) {
		var (
			decision   domain.Decision
			selected   string
			suppressed []string
			snapshot   []byte
		)
		if err := row.Scan(
			&decision.DecisionID,
			&decision.UserID,
			&decision.TriggeredRules,
			&selected,
			&suppressed,
			&snapshot,
			&decision.CreatedAt,
		); err != nil {
			return domain.Decision{}, err
		}
		decision.SelectedAction = domain.ActionType(selected)
		for _, actionType := range suppressed {
			decision.SuppressedActions = append(decision.SuppressedActions, domain.ActionType(actionType))
		}
		decision.UserStateSnapshot = snapshot
		return decision, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan decisions: %w", err)
	}
	return decisions, nil
}

// RecentActions lists newest actions first, optionally for one user.
// Params: filter with optional user ID and limit (>0).
// Returns: actions or query error.
func (s *PostgresStore) RecentActions(ctx context.Context, filter RecordFilter) ([]domain.Action, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	query := s.sb.Select(actionColumns...).From(tableActions)
	if filter.UserID != "" {
		query = query.Where(sq.Eq{"user_id": filter.UserID})
	}
	sql, args, err := query.
		OrderBy("created_at DESC", "action_id DESC").
		Limit(uint64(filter.Limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build actions query: %w", err)
	}
	rows, err := QuerierFromCtx(ctx, s.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	actions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Action, error) {
		var (
			action     domain.Action
			actionType string
		)
		if err := row.Scan(&action.ActionID, &action.UserID, &actionType, &action.Message, &action.CreatedAt); err != nil {
			return domain.Action{}, err
		}
		action.ActionType = domain.ActionType(actionType)
		return action, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan actions: %w", err)
	}
	return actions, nil
}

// DailyActionCounts counts actions per type created on the UTC day containing day.
// Params: any instant within the day.
// Returns: counts keyed by action type.
func (s *PostgresStore) DailyActionCounts(ctx context.Context, day time.Time) (map[domain.ActionType]int64, error) {
	start, end := clock.DayBounds(day)
	sql, args, err := s.sb.Select("action_type", "COUNT(*)").
		From(tableActions).
		Where(sq.GtOrEq{"created_at": start}).
		Where(sq.Lt{"created_at": end}).
		GroupBy("action_type").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build action count query: %w", err)
	}
	rows, err := QuerierFromCtx(ctx, s.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query action counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ActionType]int64)
	for rows.Next() {
		var (
			actionType string
			count      int64
		)
		if err := rows.Scan(&actionType, &count); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		counts[domain.ActionType(actionType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action counts: %w", err)
	}
	return counts, nil
}

// Summary counts users, events, records, and active rules; day-scoped counts use the UTC day of day.
// Params: any instant within the reported day.
// Returns: dashboard summary or query error.
func (s *PostgresStore) Summary(ctx context.Context, day time.Time) (domain.Summary, error) {
	start, end := clock.DayBounds(day)
	sql, args, err := s.sb.Select().
		Column(sq.Expr("(SELECT COUNT(*) FROM " + tableUserState + ")")).
		Column(sq.Expr("(SELECT COUNT(*) FROM " + tableEvents + ")")).
		Column(sq.Expr("(SELECT COUNT(*) FROM "+tableEvents+" WHERE event_time >= ? AND event_time < ?)", start, end)).
		Column(sq.Expr("(SELECT COUNT(*) FROM " + tableDecisions + ")")).
		Column(sq.Expr("(SELECT COUNT(*) FROM "+tableDecisions+" WHERE created_at >= ? AND created_at < ?)", start, end)).
		Column(sq.Expr("(SELECT COUNT(*) FROM " + tableActions + ")")).
		Column(sq.Expr("(SELECT COUNT(*) FROM "+tableActions+" WHERE created_at >= ? AND created_at < ?)", start, end)).
		Column(sq.Expr("(SELECT COUNT(*) FROM " + tableRules + " WHERE is_active)")).
		ToSql()
	if err != nil {
		return domain.Summary{}, fmt.Errorf("build summary query: %w", err)
	}

	summary := domain.Summary{
		Day:              start.Format(time.DateOnly),
		RiskDistribution: make(map[domain.RiskLevel]int64),
	}
	err = QuerierFromCtx(ctx, s.db).QueryRow(ctx, sql, args...).Scan(
		&summary.TotalUsers,
		&summary.TotalEvents,
		&summary.TodayEvents,
		&summary.TotalDecisions,
		&summary.TodayDecisions,
		&summary.TotalActions,
		&summary.TodayActions,
		&summary.ActiveRules,
	)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("query summary: %w", err)
	}

	sql, args, err = s.sb.Select("risk_level", "COUNT(*)").
		From(tableUserState).
		GroupBy("risk_level").
		ToSql()
	if err != nil {
		return domain.Summary{}, fmt.Errorf("build risk distribution query: %w", err)
	}
	rows, err := QuerierFromCtx(ctx, s.db).Query(ctx, sql, args...)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("query risk distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			risk  string
			count int64
		)
		if err := rows.Scan(&risk, &count); err != nil {
			return domain.Summary{}, fmt.Errorf("scan risk distribution: %w", err)
		}
		summary.RiskDistribution[domain.RiskLevel(risk)] = count
	}
	if err := rows.Err(); err != nil {
		return domain.Summary{}, fmt.Errorf("iterate risk distribution: %w", err)
	}
	return summary, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// actionTypeStrings converts action types for text[] binding; empty input binds NULL.
func actionTypeStrings(values []domain.ActionType) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, string(value))
	}
	return out
}
