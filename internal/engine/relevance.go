package engine

import (
	"strings"

	"decisionengine/internal/domain"
)

// IsRelevant reports whether a rule condition can be affected by one event category.
// Params: condition text and category of the triggering event; UNKNOWN disables scoping.
// Returns: true when condition mentions the category's home field.
func IsRelevant(condition string, category domain.EventCategory) bool {
	if !category.IsScoped() {
		return true
	}
	return strings.Contains(strings.ToLower(condition), category.HomeField())
}
