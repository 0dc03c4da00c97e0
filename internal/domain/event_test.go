package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDecodeEventDerivesCategoryAndUnitFromService(t *testing.T) {
	t.Parallel()

	event, err := DecodeEvent([]byte(`{"user_id":"U1","service":"Paycell","value":120.5}`))
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Category != CategoryPayment {
		t.Fatalf("expected PAYMENT, got %q", event.Category)
	}
	if event.Unit != "TRY" {
		t.Fatalf("expected TRY unit, got %q", event.Unit)
	}
}

func TestDecodeEventRejectsInvalidPayloads(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing user":     `{"service":"BiP","event_type":"USAGE","value":1}`,
		"negative value":   `{"user_id":"U1","event_type":"USAGE","value":-1}`,
		"unknown category": `{"user_id":"U1","event_type":"ROAMING","value":1}`,
		"unknown service":  `{"user_id":"U1","service":"Other","value":1}`,
		"broken json":      `{"user_id":`,
	}
	for name, payload := range cases {
		if _, err := DecodeEvent([]byte(payload)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDecodeEventsReader(t *testing.T) {
	t.Parallel()

	payload := `[{"user_id":"U1","event_type":"usage","value":2},{"user_id":"U2","event_type":"CONTENT_CONSUMPTION","value":30}]`
	events, err := DecodeEventsReader(json.NewDecoder(strings.NewReader(payload)))
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Category != CategoryUsage || events[1].Unit != "MIN" {
		t.Fatalf("unexpected normalization: %+v", events)
	}
}

func TestDecodeEventsReaderRejectsEmptyBatch(t *testing.T) {
	t.Parallel()

	if _, err := DecodeEventsReader(json.NewDecoder(strings.NewReader("[]"))); err == nil {
		t.Fatalf("expected error for empty batch")
	}
}

func TestCategoryHomeField(t *testing.T) {
	t.Parallel()

	if CategoryUsage.HomeField() != FieldInternetTodayGB {
		t.Fatalf("unexpected usage home field")
	}
	if CategoryPayment.HomeField() != FieldSpendTodayTRY {
		t.Fatalf("unexpected payment home field")
	}
	if CategoryContent.HomeField() != FieldContentMinutesToday {
		t.Fatalf("unexpected content home field")
	}
	if CategoryUnknown.IsScoped() {
		t.Fatalf("unknown category must not be scoped")
	}
}

func TestUserStateApplyAccumulatesAndDerivesRisk(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	state := UserState{UserID: "U1", InternetTodayGB: 14}
	state = state.Apply(Event{UserID: "U1", Category: CategoryUsage, Value: 2}, at)

	if state.InternetTodayGB != 16 {
		t.Fatalf("expected 16 GB, got %v", state.InternetTodayGB)
	}
	if state.RiskLevel != RiskHigh {
		t.Fatalf("expected HIGH risk, got %q", state.RiskLevel)
	}
	if !state.UpdatedAt.Equal(at) {
		t.Fatalf("expected updated_at to be set")
	}
	input := state.EvaluationInput()
	if len(input) != 3 || input[FieldInternetTodayGB] != 16 {
		t.Fatalf("unexpected evaluation input: %#v", input)
	}
}
