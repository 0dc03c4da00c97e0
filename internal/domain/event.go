package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// EventCategory identifies which cumulative metric one event contributes to.
// Params: constants USAGE, PAYMENT, CONTENT_CONSUMPTION, UNKNOWN.
// Returns: normalized category used by ingest and relevance filtering.
type EventCategory string

const (
	// CategoryUsage marks internet usage events measured in GB.
	CategoryUsage EventCategory = "USAGE"
	// CategoryPayment marks payment events measured in TRY.
	CategoryPayment EventCategory = "PAYMENT"
	// CategoryContent marks content consumption events measured in minutes.
	CategoryContent EventCategory = "CONTENT_CONSUMPTION"
	// CategoryUnknown disables category scoping.
	CategoryUnknown EventCategory = "UNKNOWN"
)

// Field names of the evaluation input. Condition strings reference these tokens.
const (
	FieldInternetTodayGB     = "internet_today_gb"
	FieldSpendTodayTRY       = "spend_today_try"
	FieldContentMinutesToday = "content_minutes_today"
)

var (
	categoryHomeField = map[EventCategory]string{
		CategoryUsage:   FieldInternetTodayGB,
		CategoryPayment: FieldSpendTodayTRY,
		CategoryContent: FieldContentMinutesToday,
	}
	categoryUnit = map[EventCategory]string{
		CategoryUsage:   "GB",
		CategoryPayment: "TRY",
		CategoryContent: "MIN",
	}
	serviceCategory = map[string]EventCategory{
		"superonline": CategoryUsage,
		"bip":         CategoryUsage,
		"paycell":     CategoryPayment,
		"tv+":         CategoryContent,
		"fizy":        CategoryContent,
		"game+":       CategoryContent,
	}
)

// KnownFields returns the evaluation-input field names in stable order.
// Params: none.
// Returns: fresh slice of field names.
func KnownFields() []string {
	return []string{FieldInternetTodayGB, FieldSpendTodayTRY, FieldContentMinutesToday}
}

// ParseEventCategory normalizes category text.
// Params: raw category, case-insensitive; empty means UNKNOWN.
// Returns: category or error for unsupported values.
func ParseEventCategory(raw string) (EventCategory, error) {
	switch EventCategory(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", CategoryUnknown:
		return CategoryUnknown, nil
	case CategoryUsage:
		return CategoryUsage, nil
	case CategoryPayment:
		return CategoryPayment, nil
	case CategoryContent:
		return CategoryContent, nil
	default:
		return CategoryUnknown, fmt.Errorf("unsupported event category %q", raw)
	}
}

// HomeField returns the state field one category contributes to.
// Params: none.
// Returns: field name or empty string for UNKNOWN.
func (c EventCategory) HomeField() string {
	return categoryHomeField[c]
}

// IsScoped reports whether category narrows rule evaluation.
// Params: none.
// Returns: true for the three concrete categories.
func (c EventCategory) IsScoped() bool {
	return c.HomeField() != ""
}

// CategoryForService maps a source service name to its default category.
// Params: service name, case-insensitive.
// Returns: category and true when the service is known.
func CategoryForService(service string) (EventCategory, bool) {
	category, ok := serviceCategory[strings.ToLower(strings.TrimSpace(service))]
	return category, ok
}

// Event is one incoming usage/payment/content event.
// Params: identity, source service, category, non-negative value, and timestamp.
// Returns: validated payload applied to cumulative user state.
type Event struct {
	EventID   string        `json:"event_id"`
	UserID    string        `json:"user_id"`
	Service   string        `json:"service"`
	Category  EventCategory `json:"event_type"`
	Value     float64       `json:"value"`
	Unit      string        `json:"unit"`
	Timestamp time.Time     `json:"timestamp"`
}

// DecodeEvent decodes and normalizes one event payload.
// Params: JSON document bytes.
// Returns: validated event or decode/validation error.
func DecodeEvent(raw []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := event.Normalize(); err != nil {
		return Event{}, err
	}
	return event, nil
}

// DecodeEventsReader decodes and normalizes one batch of events from stream.
// Params: reader with one JSON array of events.
// Returns: validated events or decode/validation error.
func DecodeEventsReader(reader *json.Decoder) ([]Event, error) {
	var events []Event
	if err := reader.Decode(&events); err != nil {
		return nil, fmt.Errorf("decode event batch: %w", err)
	}
	if len(events) == 0 {
		return nil, errors.New("event batch must contain at least one event")
	}
	for i := range events {
		if err := events[i].Normalize(); err != nil {
			return nil, fmt.Errorf("event[%d]: %w", i, err)
		}
	}
	return events, nil
}

// Normalize fills derived defaults and validates the event.
// Params: event fields parsed from transport.
// Returns: validation error when the contract is violated.
func (e *Event) Normalize() error {
	e.UserID = strings.TrimSpace(e.UserID)
	if e.UserID == "" {
		return errors.New("user_id is required")
	}

	category, err := ParseEventCategory(string(e.Category))
	if err != nil {
		return err
	}
	if category == CategoryUnknown {
		byService, ok := CategoryForService(e.Service)
		if !ok {
			return fmt.Errorf("event_type is required for service %q", e.Service)
		}
		category = byService
	}
	e.Category = category

	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return errors.New("value must be finite")
	}
	if e.Value < 0 {
		return errors.New("value must be >=0")
	}
	if strings.TrimSpace(e.Unit) == "" {
		e.Unit = categoryUnit[category]
	}
	return nil
}
