package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"decisionengine/internal/domain"
	"decisionengine/internal/permanent"
)

// EventSink receives decoded events from ingest interfaces.
// Params: request context and decoded event payload.
// Returns: processing error; permanent errors are not retried.
type EventSink interface {
	Push(ctx context.Context, event domain.Event) error
}

// BatchEventSink accepts a decoded batch in one call.
type BatchEventSink interface {
	EventSink
	PushBatch(ctx context.Context, events []domain.Event) error
}

// HTTPHandler decodes JSON events and forwards them to sink.
// Params: sink receives validated events, max body limits payload size.
// Returns: HTTP handler for ingest endpoints.
type HTTPHandler struct {
	sink        EventSink
	maxBodySize int64
	batchOnly   bool
	logger      *slog.Logger
}

type ingestResponse struct {
	Accepted int      `json:"accepted"`
	EventIDs []string `json:"event_ids"`
}

// NewHTTPHandler creates ingest HTTP handler accepting one event or an array.
// Params: sink, max request body size in bytes, and optional logger.
// Returns: configured handler.
func NewHTTPHandler(sink EventSink, maxBodySize int64, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPHandler{sink: sink, maxBodySize: maxBodySize, logger: logger}
}

// BatchOnly returns copy of handler that rejects non-array payloads.
func (h *HTTPHandler) BatchOnly() *HTTPHandler {
	clone := *h
	clone.batchOnly = true
	return &clone
}

// ServeHTTP handles one incoming ingest request.
// Params: HTTP request/response writer pair.
// Returns: 202 on success, 400 on decode error, 409 on replay, 422 on sink-side validation, 503 on sink error.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	events, err := DecodePayload(body)
	if err != nil {
		h.logger.Debug("ingest payload rejected", "path", request.URL.Path, "error", err.Error())
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}
	if h.batchOnly && !isArrayPayload(body) {
		http.Error(writer, "batch endpoint expects a JSON array", http.StatusBadRequest)
		return
	}

	if err := pushEvents(request.Context(), h.sink, events); err != nil {
		if reason, ok := permanent.ReasonOf(err); ok {
			status := http.StatusConflict
			if reason == permanent.ReasonInvalid {
				status = http.StatusUnprocessableEntity
			}
			http.Error(writer, err.Error(), status)
			return
		}
		h.logger.Error("ingest push failed", "path", request.URL.Path, "error", err.Error())
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	response := ingestResponse{Accepted: len(events), EventIDs: make([]string, 0, len(events))}
	for _, event := range events {
		response.EventIDs = append(response.EventIDs, event.EventID)
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(writer).Encode(response)
}

func isArrayPayload(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
