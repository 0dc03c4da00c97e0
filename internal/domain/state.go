package domain

import "time"

// RiskLevel is the stored risk classification of one user.
// Params: constants LOW..CRITICAL.
// Returns: informational level, never read by rule evaluation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// UserState is the cumulative metric aggregate for the current day.
// Params: user key, three cumulative metrics, risk level, and last update time.
// Returns: read-only snapshot consumed by the decision core.
type UserState struct {
	UserID              string    `json:"user_id"`
	InternetTodayGB     float64   `json:"internet_today_gb"`
	SpendTodayTRY       float64   `json:"spend_today_try"`
	ContentMinutesToday float64   `json:"content_minutes_today"`
	RiskLevel           RiskLevel `json:"risk_level"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// EvaluationInput flattens state into the field map conditions are evaluated against.
// Params: none.
// Returns: fresh map keyed by condition field names.
func (s UserState) EvaluationInput() map[string]float64 {
	return map[string]float64{
		FieldInternetTodayGB:     s.InternetTodayGB,
		FieldSpendTodayTRY:       s.SpendTodayTRY,
		FieldContentMinutesToday: s.ContentMinutesToday,
	}
}

// Apply adds one event value to the category home field.
// Params: normalized event and update time.
// Returns: updated copy with recomputed risk level.
func (s UserState) Apply(event Event, at time.Time) UserState {
	switch event.Category {
	case CategoryUsage:
		s.InternetTodayGB += event.Value
	case CategoryPayment:
		s.SpendTodayTRY += event.Value
	case CategoryContent:
		s.ContentMinutesToday += event.Value
	}
	s.RiskLevel = DeriveRiskLevel(s)
	s.UpdatedAt = at
	return s
}

// DeriveRiskLevel classifies cumulative metrics into a risk level.
// Params: state snapshot.
// Returns: highest level whose threshold is reached.
func DeriveRiskLevel(s UserState) RiskLevel {
	switch {
	case s.InternetTodayGB >= 50 || s.SpendTodayTRY >= 2000:
		return RiskCritical
	case s.InternetTodayGB >= 15 || s.SpendTodayTRY >= 1000 || s.ContentMinutesToday >= 240:
		return RiskHigh
	case s.InternetTodayGB >= 8 || s.SpendTodayTRY >= 500 || s.ContentMinutesToday >= 120:
		return RiskMedium
	default:
		return RiskLow
	}
}
