package condition

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"decisionengine/internal/domain"
)

func TestParseReportsPosition(t *testing.T) {
	t.Parallel()

	_, err := Parse("internet_today_gb > 15GB")
	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}
	if syntaxErr.Pos != 22 {
		t.Fatalf("expected position 22, got %d", syntaxErr.Pos)
	}
}

func TestParseRendersCanonicalForm(t *testing.T) {
	t.Parallel()

	expr, err := Parse("(a >= 1 || b between 2 and 3) && c == 0.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := expr.String(); got != "((a >= 1 OR b BETWEEN 2 AND 3) AND c == 0.5)" {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestFieldsDistinctInOrder(t *testing.T) {
	t.Parallel()

	expr, err := Parse("spend_today_try > 1 AND (internet_today_gb > 2 OR spend_today_try < 9)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := Fields(expr)
	want := []string{"spend_today_try", "internet_today_gb"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestValidateKnownFields(t *testing.T) {
	t.Parallel()

	known := domain.KnownFields()
	if err := Validate("internet_today_gb > 15 AND content_minutes_today BETWEEN 60 AND 120", known); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := Validate("internet_gb > 1 OR zzz < 2 OR spend_today_try > 0", known)
	if err == nil || !strings.Contains(err.Error(), "unknown field(s) internet_gb, zzz") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
	if err := Validate("internet_today_gb >", known); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestComposeTerms(t *testing.T) {
	t.Parallel()

	primary := Term{Field: domain.FieldInternetTodayGB, Op: ">", Value: 15}
	if got := Compose(primary, "", nil); got != "internet_today_gb > 15" {
		t.Fatalf("unexpected single term %q", got)
	}

	secondary := Term{Field: domain.FieldSpendTodayTRY, Op: "between", Value: 500, High: 1000.5}
	got := Compose(primary, "and", &secondary)
	if got != "internet_today_gb > 15 AND spend_today_try BETWEEN 500 AND 1000.5" {
		t.Fatalf("unexpected composed condition %q", got)
	}
	if err := Validate(got, domain.KnownFields()); err != nil {
		t.Fatalf("composed condition must validate: %v", err)
	}
	if Compose(primary, "XOR", &secondary) != "internet_today_gb > 15" {
		t.Fatalf("unknown connector must drop secondary term")
	}
}
