package condition

import (
	"strconv"
	"strings"
)

// Operator is one binary comparison operator.
type Operator string

const (
	OpGT  Operator = ">"
	OpLT  Operator = "<"
	OpGTE Operator = ">="
	OpLTE Operator = "<="
	OpEQ  Operator = "=="
)

// Expr is one node of a parsed condition tree.
// Params: Eval receives the flat field map; missing fields read as 0.
// Returns: boolean result of the subtree.
type Expr interface {
	Eval(state map[string]float64) bool
	String() string
}

// Comparison is `<field> <op> <number>`.
type Comparison struct {
	Field string
	Op    Operator
	Value float64
}

// Between is `<field> BETWEEN <low> AND <high>`, inclusive on both ends.
type Between struct {
	Field string
	Low   float64
	High  float64
}

// And is a conjunction; the right side is evaluated only when the left holds.
type And struct {
	Left  Expr
	Right Expr
}

// Or is a disjunction; the right side is evaluated only when the left fails.
type Or struct {
	Left  Expr
	Right Expr
}

// Group is one parenthesized subexpression.
type Group struct {
	Inner Expr
}

// Eval compares field value with literal using IEEE float semantics.
// Params: field map.
// Returns: comparison result.
func (c Comparison) Eval(state map[string]float64) bool {
	value := lookup(state, c.Field)
	switch c.Op {
	case OpGT:
		return value > c.Value
	case OpLT:
		return value < c.Value
	case OpGTE:
		return value >= c.Value
	case OpLTE:
		return value <= c.Value
	case OpEQ:
		return value == c.Value
	default:
		return false
	}
}

func (c Comparison) String() string {
	return c.Field + " " + string(c.Op) + " " + formatNumber(c.Value)
}

// Eval checks low <= value <= high.
// Params: field map.
// Returns: inclusive range result.
func (b Between) Eval(state map[string]float64) bool {
	value := lookup(state, b.Field)
	return b.Low <= value && value <= b.High
}

func (b Between) String() string {
	return b.Field + " BETWEEN " + formatNumber(b.Low) + " AND " + formatNumber(b.High)
}

func (a And) Eval(state map[string]float64) bool {
	return a.Left.Eval(state) && a.Right.Eval(state)
}

func (a And) String() string {
	return "(" + a.Left.String() + " AND " + a.Right.String() + ")"
}

func (o Or) Eval(state map[string]float64) bool {
	return o.Left.Eval(state) || o.Right.Eval(state)
}

func (o Or) String() string {
	return "(" + o.Left.String() + " OR " + o.Right.String() + ")"
}

func (g Group) Eval(state map[string]float64) bool {
	return g.Inner.Eval(state)
}

func (g Group) String() string {
	return g.Inner.String()
}

// Fields lists distinct field names referenced by expression in first-seen order.
// Params: parsed expression tree.
// Returns: field names.
func Fields(expr Expr) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	var walk func(Expr)
	walk = func(node Expr) {
		switch typed := node.(type) {
		case Comparison:
			if _, ok := seen[typed.Field]; !ok {
				seen[typed.Field] = struct{}{}
				out = append(out, typed.Field)
			}
		case Between:
			if _, ok := seen[typed.Field]; !ok {
				seen[typed.Field] = struct{}{}
				out = append(out, typed.Field)
			}
		case And:
			walk(typed.Left)
			walk(typed.Right)
		case Or:
			walk(typed.Left)
			walk(typed.Right)
		case Group:
			walk(typed.Inner)
		}
	}
	walk(expr)
	return out
}

// lookup reads a field value; absent fields resolve to 0.
func lookup(state map[string]float64, field string) float64 {
	return state[field]
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// Term describes one comparison built by the rule-authoring helper.
// Params: field, operator text (comparison operator or BETWEEN), and operands.
// Returns: renderable condition fragment.
type Term struct {
	Field string
	Op    string
	Value float64
	High  float64
}

// String renders term in canonical condition syntax.
// Params: none.
// Returns: condition fragment.
func (t Term) String() string {
	if strings.EqualFold(t.Op, "BETWEEN") {
		return Between{Field: t.Field, Low: t.Value, High: t.High}.String()
	}
	return Comparison{Field: t.Field, Op: Operator(t.Op), Value: t.Value}.String()
}

// Compose renders a primary term optionally joined with a second term.
// Params: primary term, connector ("AND"/"OR", empty for none), and optional secondary term.
// Returns: condition text ready for Validate and storage.
func Compose(primary Term, connector string, secondary *Term) string {
	out := primary.String()
	connector = strings.ToUpper(strings.TrimSpace(connector))
	if secondary == nil || (connector != "AND" && connector != "OR") {
		return out
	}
	return out + " " + connector + " " + secondary.String()
}
