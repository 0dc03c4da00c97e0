package templatefmt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"text/template"
)

// FuncMap returns shared message template helpers.
// Params: none.
// Returns: deterministic helper map used by config validation and runtime rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"fmtNumber":  FormatNumber,
		"fmtMinutes": FormatMinutes,
		"json":       MarshalJSON,
	}
}

// ParseMessageTemplate parses one action message template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseMessageTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// Render executes compiled template against data.
// Params: compiled template and template data.
// Returns: rendered text or execution error.
func Render(tmpl *template.Template, data any) (string, error) {
	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buffer.String(), nil
}

// FormatNumber renders a metric with at most two decimals and no trailing zeros.
// Params: template value expected as float64 or int.
// Returns: formatted number, or "0" for unsupported input.
func FormatNumber(value any) string {
	var number float64
	switch typed := value.(type) {
	case float64:
		number = typed
	case int:
		number = float64(typed)
	case int64:
		number = float64(typed)
	default:
		return "0"
	}
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return "0"
	}
	return strconv.FormatFloat(math.Round(number*100)/100, 'f', -1, 64)
}

// FormatMinutes renders a minute count as hours and minutes.
// Params: template value expected as float64 or int minutes.
// Returns: compact form such as "4h10m" or "45m".
func FormatMinutes(value any) string {
	var minutes float64
	switch typed := value.(type) {
	case float64:
		minutes = typed
	case int:
		minutes = float64(typed)
	default:
		return "0m"
	}
	if minutes < 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return "0m"
	}
	total := int64(math.Round(minutes))
	hours, rest := total/60, total%60
	if hours == 0 {
		return fmt.Sprintf("%dm", rest)
	}
	return fmt.Sprintf("%dh%dm", hours, rest)
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
