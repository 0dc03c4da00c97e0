package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"decisionengine/internal/condition"
	"decisionengine/internal/config"
	"decisionengine/internal/domain"
	"decisionengine/internal/ingest"
	"decisionengine/internal/store"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const (
	defaultRecordListLimit = 20
	maxRecordListLimit     = 500
	maxAdminBodyBytes      = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
}

type processAllResponse struct {
	Decisions []domain.DecisionBundle `json:"decisions"`
	Errors    []string                `json:"errors,omitempty"`
}

type ruleRequest struct {
	RuleID      string `json:"rule_id"`
	Condition   string `json:"condition"`
	Action      string `json:"action"`
	Priority    int    `json:"priority"`
	IsActive    *bool  `json:"is_active"`
	Description string `json:"description"`
}

type termRequest struct {
	Field string  `json:"field"`
	Op    string  `json:"op"`
	Value float64 `json:"value"`
	High  float64 `json:"high"`
}

func (t termRequest) term() condition.Term {
	return condition.Term{Field: strings.TrimSpace(t.Field), Op: strings.TrimSpace(t.Op), Value: t.Value, High: t.High}
}

type composeRequest struct {
	Primary   termRequest  `json:"primary"`
	Connector string       `json:"connector"`
	Secondary *termRequest `json:"secondary"`
}

type composeResponse struct {
	Condition string `json:"condition"`
}

type ruleActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

type dailyCountsResponse struct {
	Day    string                      `json:"day"`
	Counts map[domain.ActionType]int64 `json:"counts"`
}

// recoveryLogger routes gorilla recovery output into slog.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(values ...interface{}) {
	l.logger.Error("http handler panic", "panic", fmt.Sprint(values...))
}

// Handler builds the HTTP surface: health, ingest, decision, and admin routes.
// Params: none.
// Returns: router wrapped with request logging and panic recovery.
func (s *Service) Handler() http.Handler {
	httpCfg := s.cfg.Ingest.HTTP
	router := mux.NewRouter()

	router.HandleFunc(httpCfg.HealthPath, s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc(httpCfg.ReadyPath, s.handleReady).Methods(http.MethodGet)
	if httpCfg.Enabled {
		ingestHandler := ingest.NewHTTPHandler(s.recorder, httpCfg.MaxBodyBytes, s.logger)
		router.Handle(httpCfg.IngestPath, ingestHandler).Methods(http.MethodPost)
		batchPath := strings.TrimSuffix(httpCfg.IngestPath, "/") + "/batch"
		router.Handle(batchPath, ingestHandler.BatchOnly()).Methods(http.MethodPost)
	}

	router.HandleFunc("/users/{userID}/process", s.handleProcessUser).Methods(http.MethodPost)
	router.HandleFunc("/process-all", s.handleProcessAll).Methods(http.MethodPost)
	router.HandleFunc("/simulate", s.handleSimulate).Methods(http.MethodPost)

	router.HandleFunc("/rules", s.handleListRules).Methods(http.MethodGet)
	router.HandleFunc("/rules", s.handleCreateRule).Methods(http.MethodPost)
	router.HandleFunc("/rules/compose", s.handleComposeRule).Methods(http.MethodPost)
	router.HandleFunc("/rules/{ruleID}", s.handleUpdateRule).Methods(http.MethodPut)
	router.HandleFunc("/rules/{ruleID}/active", s.handleSetRuleActive).Methods(http.MethodPut)
	router.HandleFunc("/decisions", s.handleRecentDecisions).Methods(http.MethodGet)
	router.HandleFunc("/actions", s.handleRecentActions).Methods(http.MethodGet)
	router.HandleFunc("/actions/daily-counts", s.handleDailyCounts).Methods(http.MethodGet)
	router.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	if s.outbox != nil {
		router.HandleFunc("/outbox", s.handleOutbox).Methods(http.MethodGet)
	}

	logged := handlers.CustomLoggingHandler(io.Discard, router, s.logRequest)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger: s.logger}))(logged)
}

func (s *Service) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	s.logger.Debug("http request",
		"method", params.Request.Method,
		"path", params.URL.Path,
		"status", params.StatusCode,
		"size", params.Size,
	)
}

func (s *Service) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ok"))
}

func (s *Service) handleReady(writer http.ResponseWriter, _ *http.Request) {
	if !s.readyFlag.Load() {
		writer.WriteHeader(http.StatusServiceUnavailable)
		_, _ = writer.Write([]byte("not-ready"))
		return
	}
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ready"))
}

func (s *Service) handleProcessUser(writer http.ResponseWriter, request *http.Request) {
	category, ok := categoryParam(writer, request)
	if !ok {
		return
	}
	userID := mux.Vars(request)["userID"]
	bundle, err := s.recorder.Process(request.Context(), userID, category)
	if err != nil {
		s.logger.Error("process user failed", "user_id", userID, "error", err.Error())
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	if bundle == nil {
		writer.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(writer, http.StatusOK, bundle)
}

func (s *Service) handleProcessAll(writer http.ResponseWriter, request *http.Request) {
	category, ok := categoryParam(writer, request)
	if !ok {
		return
	}
	bundles, err := s.recorder.ProcessAll(request.Context(), category)
	if errors.Is(err, ErrUserListUnavailable) {
		s.logger.Error("process all failed", "error", err.Error())
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	response := processAllResponse{Decisions: bundles}
	if response.Decisions == nil {
		response.Decisions = []domain.DecisionBundle{}
	}
	if err != nil {
		response.Errors = flattenErrors(err)
	}
	writeJSON(writer, http.StatusOK, response)
}

func (s *Service) handleSimulate(writer http.ResponseWriter, request *http.Request) {
	category, ok := categoryParam(writer, request)
	if !ok {
		return
	}
	var state map[string]float64
	if err := decodeBody(writer, request, &state); err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	simulation, err := s.recorder.Simulate(request.Context(), state, category)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	writeJSON(writer, http.StatusOK, simulation)
}

func (s *Service) handleListRules(writer http.ResponseWriter, request *http.Request) {
	rules, err := s.admin.ListRules(request.Context())
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	writeJSON(writer, http.StatusOK, rules)
}

func (s *Service) handleCreateRule(writer http.ResponseWriter, request *http.Request) {
	var body ruleRequest
	if err := decodeBody(writer, request, &body); err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	rule, err := body.validated(body.RuleID)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	if err := s.admin.CreateRule(request.Context(), rule); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(writer, http.StatusConflict, err)
			return
		}
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("rule created", "rule_id", rule.RuleID, "action", string(rule.Action), "priority", rule.Priority)
	writeJSON(writer, http.StatusCreated, rule)
}

func (s *Service) handleUpdateRule(writer http.ResponseWriter, request *http.Request) {
	var body ruleRequest
	if err := decodeBody(writer, request, &body); err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	ruleID := mux.Vars(request)["ruleID"]
	if id := strings.TrimSpace(body.RuleID); id != "" && id != ruleID {
		writeError(writer, http.StatusBadRequest, fmt.Errorf("rule_id %q does not match path %q", id, ruleID))
		return
	}
	rule, err := body.validated(ruleID)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	if err := s.admin.UpdateRule(request.Context(), rule); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(writer, http.StatusNotFound, err)
			return
		}
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("rule updated", "rule_id", rule.RuleID, "action", string(rule.Action), "priority", rule.Priority, "active", rule.IsActive)
	writeJSON(writer, http.StatusOK, rule)
}

// validated normalizes the body into a rule with ruleID and checks it like a seed rule.
func (r ruleRequest) validated(ruleID string) (domain.Rule, error) {
	ruleCfg := config.RuleConfig{
		ID:          strings.TrimSpace(ruleID),
		Condition:   strings.TrimSpace(r.Condition),
		Action:      strings.ToUpper(strings.TrimSpace(r.Action)),
		Priority:    r.Priority,
		Active:      r.IsActive == nil || *r.IsActive,
		Description: r.Description,
	}
	if err := config.ValidateRule(ruleCfg); err != nil {
		return domain.Rule{}, err
	}
	return ruleCfg.DomainRule(), nil
}

func (s *Service) handleComposeRule(writer http.ResponseWriter, request *http.Request) {
	var body composeRequest
	if err := decodeBody(writer, request, &body); err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	connector := strings.ToUpper(strings.TrimSpace(body.Connector))
	switch {
	case body.Secondary == nil && connector != "":
		writeError(writer, http.StatusBadRequest, errors.New("connector requires a secondary term"))
		return
	case body.Secondary != nil && connector != "AND" && connector != "OR":
		writeError(writer, http.StatusBadRequest, errors.New("connector must be AND or OR"))
		return
	}

	var secondary *condition.Term
	if body.Secondary != nil {
		term := body.Secondary.term()
		secondary = &term
	}
	text := condition.Compose(body.Primary.term(), connector, secondary)
	if err := condition.Validate(text, domain.KnownFields()); err != nil {
		writeError(writer, http.StatusBadRequest, fmt.Errorf("composed condition %q: %w", text, err))
		return
	}
	writeJSON(writer, http.StatusOK, composeResponse{Condition: text})
}

func (s *Service) handleSetRuleActive(writer http.ResponseWriter, request *http.Request) {
	var body ruleActiveRequest
	if err := decodeBody(writer, request, &body); err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	if body.IsActive == nil {
		writeError(writer, http.StatusBadRequest, errors.New("is_active is required"))
		return
	}
	ruleID := mux.Vars(request)["ruleID"]
	if err := s.admin.SetRuleActive(request.Context(), ruleID, *body.IsActive); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(writer, http.StatusNotFound, err)
			return
		}
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("rule toggled", "rule_id", ruleID, "active", *body.IsActive)
	writer.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleRecentDecisions(writer http.ResponseWriter, request *http.Request) {
	filter, ok := recordFilterParams(writer, request)
	if !ok {
		return
	}
	decisions, err := s.admin.RecentDecisions(request.Context(), filter)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	writeJSON(writer, http.StatusOK, decisions)
}

func (s *Service) handleRecentActions(writer http.ResponseWriter, request *http.Request) {
	filter, ok := recordFilterParams(writer, request)
	if !ok {
		return
	}
	actions, err := s.admin.RecentActions(request.Context(), filter)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	writeJSON(writer, http.StatusOK, actions)
}

func (s *Service) handleSummary(writer http.ResponseWriter, request *http.Request) {
	day, ok := s.dayParam(writer, request)
	if !ok {
		return
	}
	summary, err := s.admin.Summary(request.Context(), day)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	writeJSON(writer, http.StatusOK, summary)
}

func (s *Service) handleDailyCounts(writer http.ResponseWriter, request *http.Request) {
	day, ok := s.dayParam(writer, request)
	if !ok {
		return
	}
	counts, err := s.admin.DailyActionCounts(request.Context(), day)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	writeJSON(writer, http.StatusOK, dailyCountsResponse{Day: day.Format(time.DateOnly), Counts: counts})
}

func (s *Service) handleOutbox(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, s.outbox.Jobs())
}

// dayParam reads the optional day query parameter, defaulting to today (UTC).
func (s *Service) dayParam(writer http.ResponseWriter, request *http.Request) (time.Time, bool) {
	raw := request.URL.Query().Get("day")
	if raw == "" {
		return s.clock.Now().UTC(), true
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		writeError(writer, http.StatusBadRequest, errors.New("day must be YYYY-MM-DD"))
		return time.Time{}, false
	}
	return day, true
}

// recordFilterParams reads the optional user_id and limit query parameters.
func recordFilterParams(writer http.ResponseWriter, request *http.Request) (store.RecordFilter, bool) {
	query := request.URL.Query()
	filter := store.RecordFilter{
		UserID: strings.TrimSpace(query.Get("user_id")),
		Limit:  defaultRecordListLimit,
	}
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxRecordListLimit {
			writeError(writer, http.StatusBadRequest, fmt.Errorf("limit must be within 1..%d", maxRecordListLimit))
			return store.RecordFilter{}, false
		}
		filter.Limit = parsed
	}
	return filter, true
}

// categoryParam reads the optional category query parameter.
func categoryParam(writer http.ResponseWriter, request *http.Request) (domain.EventCategory, bool) {
	category, err := domain.ParseEventCategory(request.URL.Query().Get("category"))
	if err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return "", false
	}
	return category, true
}

func decodeBody(writer http.ResponseWriter, request *http.Request, dst any) error {
	request.Body = http.MaxBytesReader(writer, request.Body, maxAdminBodyBytes)
	decoder := json.NewDecoder(request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

func writeError(writer http.ResponseWriter, status int, err error) {
	writeJSON(writer, status, errorResponse{Error: err.Error()})
}

// flattenErrors splits a joined error into its messages.
func flattenErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, item := range joined.Unwrap() {
			out = append(out, item.Error())
		}
		return out
	}
	return []string{err.Error()}
}
