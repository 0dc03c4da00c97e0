package condition

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestEvaluateComparisons(t *testing.T) {
	t.Parallel()

	state := map[string]float64{"internet_today_gb": 16, "spend_today_try": 50}
	cases := []struct {
		condition string
		want      bool
	}{
		{"internet_today_gb > 15", true},
		{"internet_today_gb > 16", false},
		{"internet_today_gb >= 16", true},
		{"internet_today_gb < 16", false},
		{"internet_today_gb <= 16", true},
		{"internet_today_gb == 16", true},
		{"spend_today_try > -1", true},
		{"spend_today_try < .5", false},
		{"spend_today_try >= 50.0", true},
	}
	for _, tc := range cases {
		if got := Evaluate(tc.condition, state); got != tc.want {
			t.Fatalf("%q: expected %v, got %v", tc.condition, tc.want, got)
		}
	}
}

func TestEvaluateBetweenIsInclusive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value float64
		want  bool
	}{
		{10, true},
		{15, true},
		{20, true},
		{9.999, false},
		{20.001, false},
	}
	for _, tc := range cases {
		if got := Evaluate("x BETWEEN 10 AND 20", map[string]float64{"x": tc.value}); got != tc.want {
			t.Fatalf("x=%v: expected %v, got %v", tc.value, tc.want, got)
		}
	}
}

func TestEvaluateMissingFieldReadsAsZero(t *testing.T) {
	t.Parallel()

	if Evaluate("y > 5", map[string]float64{"x": 100}) {
		t.Fatalf("missing field must read as 0")
	}
	if !Evaluate("y < 5", map[string]float64{"x": 100}) {
		t.Fatalf("missing field must read as 0")
	}
	if !Evaluate("y == 0", nil) {
		t.Fatalf("nil state must read fields as 0")
	}
}

func TestEvaluateAndBindsTighterThanOr(t *testing.T) {
	t.Parallel()

	condition := "a > 1 OR b > 1 AND c > 1"
	if Evaluate(condition, map[string]float64{"a": 0, "b": 2, "c": 0}) {
		t.Fatalf("expected false when only b holds")
	}
	if !Evaluate(condition, map[string]float64{"a": 0, "b": 2, "c": 2}) {
		t.Fatalf("expected true when b AND c hold")
	}
	if !Evaluate(condition, map[string]float64{"a": 2, "b": 0, "c": 0}) {
		t.Fatalf("expected true when a holds alone")
	}

	expr, err := Parse(condition)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := expr.String(); got != "(a > 1 OR (b > 1 AND c > 1))" {
		t.Fatalf("unexpected tree %q", got)
	}
}

func TestEvaluateParenthesesOverridePrecedence(t *testing.T) {
	t.Parallel()

	state := map[string]float64{"a": 2, "b": 0, "c": 0}
	if !Evaluate("a > 1 OR b > 1 AND c > 1", state) {
		t.Fatalf("expected true without parentheses")
	}
	if Evaluate("(a > 1 OR b > 1) AND c > 1", state) {
		t.Fatalf("expected false with grouped OR")
	}
}

func TestEvaluateKeywordsAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	state := map[string]float64{"x": 12, "y": 3}
	variants := []string{
		"x > 10 AND y > 1",
		"x > 10 and y > 1",
		"x > 10 AnD y > 1",
		"x > 10 && y > 1",
		"x>10&&y>1",
	}
	for _, condition := range variants {
		if !Evaluate(condition, state) {
			t.Fatalf("%q: expected true", condition)
		}
	}
	orVariants := []string{"x > 100 OR y > 1", "x > 100 or y > 1", "x > 100 || y > 1"}
	for _, condition := range orVariants {
		if !Evaluate(condition, state) {
			t.Fatalf("%q: expected true", condition)
		}
	}
	betweenVariants := []string{"x BETWEEN 10 AND 15", "x between 10 and 15", "x Between 10 And 15"}
	for _, condition := range betweenVariants {
		if !Evaluate(condition, state) {
			t.Fatalf("%q: expected true", condition)
		}
	}
}

func TestEvaluateBetweenCombinedWithConnectors(t *testing.T) {
	t.Parallel()

	condition := "internet_today_gb BETWEEN 8 AND 15 AND spend_today_try > 100 OR content_minutes_today >= 240"
	if !Evaluate(condition, map[string]float64{"internet_today_gb": 10, "spend_today_try": 200}) {
		t.Fatalf("expected BETWEEN term joined with AND to hold")
	}
	if Evaluate(condition, map[string]float64{"internet_today_gb": 10, "spend_today_try": 50}) {
		t.Fatalf("expected false when spend fails and content is 0")
	}
	if !Evaluate(condition, map[string]float64{"content_minutes_today": 240}) {
		t.Fatalf("expected OR branch to hold")
	}
}

func TestEvaluateGrammarViolationsFailClosed(t *testing.T) {
	t.Parallel()

	state := map[string]float64{"x": 100, "y": 100}
	violations := []string{
		"",
		"   ",
		"x > 10 AND",
		"(x > 10",
		"x > 10)",
		"x = 10",
		"x != 10",
		"x > 10 ; y > 1",
		"x > abc",
		"x > 10 y > 1",
		"x BETWEEN 10 OR 20",
		"x BETWEEN 10",
		"__import__('os')",
		"x > 15GB",
		"x > 1e3",
		"x > 1.2.3",
		"x + 1 > 10",
		"x > 10 & y > 1",
		"x > 10 | y > 1",
		"AND x > 1",
		"x > 10 OR OR y > 1",
		"()",
		"> 10",
		"x > - 1",
	}
	for _, condition := range violations {
		if Evaluate(condition, state) {
			t.Fatalf("%q: expected fail-closed false", condition)
		}
		if _, err := Parse(condition); err == nil {
			t.Fatalf("%q: expected parse error", condition)
		}
	}
}

func TestEvaluatorLogsRejectedCondition(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	evaluator := NewEvaluator(slog.New(slog.NewTextHandler(&buffer, nil)))

	if evaluator.Evaluate("x >> 5", map[string]float64{"x": 10}) {
		t.Fatalf("expected false for malformed condition")
	}
	logged := buffer.String()
	if !strings.Contains(logged, "level=WARN") || !strings.Contains(logged, "x >> 5") {
		t.Fatalf("expected warning with condition text, got %q", logged)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	t.Parallel()

	evaluator := NewEvaluator(nil)
	state := map[string]float64{"a": 3, "b": 4}
	first := evaluator.Evaluate("a > 2 AND (b < 3 OR b == 4)", state)
	for i := 0; i < 50; i++ {
		if got := evaluator.Evaluate("a > 2 AND (b < 3 OR b == 4)", state); got != first {
			t.Fatalf("iteration %d: result changed", i)
		}
	}
	if !first {
		t.Fatalf("expected true")
	}
}

func TestEvaluatorConcurrentUse(t *testing.T) {
	t.Parallel()

	evaluator := NewEvaluator(nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(value float64) {
			defer wg.Done()
			got := evaluator.Evaluate("x >= 8", map[string]float64{"x": value})
			if got != (value >= 8) {
				t.Errorf("x=%v: unexpected %v", value, got)
			}
		}(float64(i))
	}
	wg.Wait()
}

// Float equality follows IEEE semantics: 0.1+0.2 is not exactly 0.3.
func TestEvaluateFloatEqualityBoundary(t *testing.T) {
	t.Parallel()

	sum := 0.1
	sum += 0.2
	if Evaluate("x == 0.3", map[string]float64{"x": sum}) {
		t.Fatalf("expected IEEE inequality for 0.1+0.2 == 0.3")
	}
	if !Evaluate("x == 0.5", map[string]float64{"x": 0.25 + 0.25}) {
		t.Fatalf("expected exact equality for representable values")
	}
}

func TestFieldNameSubstringsDoNotInterfere(t *testing.T) {
	t.Parallel()

	state := map[string]float64{"spend": 1, "spend_today_try": 500}
	if !Evaluate("spend_today_try > 100 AND spend < 2", state) {
		t.Fatalf("expected independent lookup of overlapping field names")
	}
}

func TestEvaluatorCacheStaysBounded(t *testing.T) {
	t.Parallel()

	evaluator := NewEvaluator(nil)
	evaluator.limit = 2
	state := map[string]float64{"internet_today_gb": 16}

	conditions := []string{"internet_today_gb > 15", "internet_today_gb > 16", "internet_today_gb > 10", "internet_today_gb >"}
	want := []bool{true, false, true, false}
	for i, condition := range conditions {
		if got := evaluator.Evaluate(condition, state); got != want[i] {
			t.Fatalf("%q: expected %v, got %v", condition, want[i], got)
		}
		evaluator.mu.Lock()
		size := len(evaluator.cache)
		evaluator.mu.Unlock()
		if size > 2 {
			t.Fatalf("cache grew to %d entries", size)
		}
	}
	if !evaluator.Evaluate("internet_today_gb > 15", state) {
		t.Fatalf("evicted condition must re-parse")
	}
}
