package app

import (
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"decisionengine/internal/domain"
	"decisionengine/internal/templatefmt"
)

var defaultMessages = map[domain.ActionType]string{
	domain.ActionDataUsageWarning: "Günlük internet kullanımınız 15GB'ı aştı. Kalan kotanızı kontrol etmenizi öneririz.",
	domain.ActionSpendAlert:       "Bugün yüksek harcama yaptınız. Harcama limitinizi gözden geçirin.",
	domain.ActionContentCooldown:  "4 saatten fazla içerik tükettiniz. Biraz ara vermeye ne dersiniz?",
	domain.ActionCriticalAlert:    "Bugün internet ve harcama kullanımınız yüksek seviyededir. Limitlerinizi kontrol etmenizi öneririz.",
	domain.ActionDataUsageNudge:   "İnternet kullanımınız orta seviyeye ulaştı. Dikkatli olmanızı öneririz.",
	domain.ActionSpendNudge:       "Harcamalarınız orta seviyeye ulaştı. Bütçenizi kontrol edin.",
}

type messageEntry struct {
	body string
	tmpl *template.Template
}

// MessageCatalog resolves the user-facing text of one action type.
// Params: built-in table merged with configured overrides.
// Returns: message resolver safe for concurrent reads.
type MessageCatalog struct {
	entries map[domain.ActionType]messageEntry
	logger  *slog.Logger
}

// NewMessageCatalog compiles built-in messages and overrides keyed by action type.
// Params: overrides (keys case-insensitive) and optional logger.
// Returns: catalog or template parse error.
func NewMessageCatalog(overrides map[string]string, logger *slog.Logger) (*MessageCatalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	bodies := make(map[domain.ActionType]string, len(defaultMessages)+len(overrides))
	for actionType, body := range defaultMessages {
		bodies[actionType] = body
	}
	for key, body := range overrides {
		bodies[domain.ActionType(strings.ToUpper(strings.TrimSpace(key)))] = strings.TrimSpace(body)
	}

	catalog := &MessageCatalog{entries: make(map[domain.ActionType]messageEntry, len(bodies)), logger: logger}
	for actionType, body := range bodies {
		tmpl, err := templatefmt.ParseMessageTemplate(string(actionType), body)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", actionType, err)
		}
		catalog.entries[actionType] = messageEntry{body: body, tmpl: tmpl}
	}
	return catalog, nil
}

// Resolve renders message for action type against user state.
// Params: action type and state snapshot exposed to templates.
// Returns: rendered text, raw body when rendering fails, or "Bildirim: <TYPE>" for unknown types.
func (c *MessageCatalog) Resolve(actionType domain.ActionType, state domain.UserState) string {
	entry, ok := c.entries[actionType]
	if !ok {
		c.logger.Debug("message fallback used", "action", string(actionType))
		return "Bildirim: " + string(actionType)
	}
	text, err := templatefmt.Render(entry.tmpl, state)
	if err != nil {
		c.logger.Warn("message render failed", "action", string(actionType), "error", err.Error())
		return entry.body
	}
	return text
}
