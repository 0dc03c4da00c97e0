// Package condition parses and evaluates rule conditions over a flat numeric state.
//
// Grammar:
//
//	expr    := andExpr { (OR | "||") andExpr }
//	andExpr := primary { (AND | "&&") primary }
//	primary := "(" expr ")" | field op number | field BETWEEN number AND number
//	op      := ">" | "<" | ">=" | "<=" | "=="
//
// Fields absent from the state map evaluate as 0. Conditions that do not
// match the grammar never evaluate to true.
package condition

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// maxCachedConditions bounds the parse cache; edited rules leave stale entries behind.
const maxCachedConditions = 256

// Evaluator evaluates condition strings with a parse cache and a warning sink.
// Params: logger receives grammar violations.
// Returns: safe condition evaluator.
type Evaluator struct {
	logger *slog.Logger
	limit  int

	mu    sync.Mutex
	cache map[string]parsed
}

type parsed struct {
	expr Expr
	err  error
}

var defaultEvaluator = NewEvaluator(nil)

// NewEvaluator creates evaluator bound to logger.
// Params: logger (discarding logger when nil).
// Returns: initialized evaluator.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{
		logger: logger,
		limit:  maxCachedConditions,
		cache:  make(map[string]parsed),
	}
}

// Evaluate reports whether condition holds for state.
// Params: condition text and field map; missing fields read as 0.
// Returns: condition result, or false with a warning log on grammar violation.
func (e *Evaluator) Evaluate(condition string, state map[string]float64) bool {
	expr, err := e.compile(condition)
	if err != nil {
		e.logger.Warn("condition rejected", "condition", condition, "error", err.Error())
		return false
	}
	return expr.Eval(state)
}

// compile parses condition once and memoizes the outcome.
// A full cache is dropped whole before the new entry is stored.
func (e *Evaluator) compile(condition string) (Expr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.cache[condition]; ok {
		return entry.expr, entry.err
	}
	expr, err := Parse(condition)
	if len(e.cache) >= e.limit {
		clear(e.cache)
	}
	e.cache[condition] = parsed{expr: expr, err: err}
	return expr, err
}

// Evaluate reports whether condition holds for state using a non-logging evaluator.
// Params: condition text and field map.
// Returns: condition result; false on grammar violation.
func Evaluate(condition string, state map[string]float64) bool {
	return defaultEvaluator.Evaluate(condition, state)
}

// Validate checks that condition parses and references only known fields.
// Params: condition text and allowed field names.
// Returns: descriptive error for the first violation.
func Validate(condition string, knownFields []string) error {
	expr, err := Parse(condition)
	if err != nil {
		return err
	}
	allowed := make(map[string]struct{}, len(knownFields))
	for _, field := range knownFields {
		allowed[field] = struct{}{}
	}
	var unknown []string
	for _, field := range Fields(expr) {
		if _, ok := allowed[field]; !ok {
			unknown = append(unknown, field)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown field(s) %s", strings.Join(unknown, ", "))
	}
	return nil
}
