package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"decisionengine/internal/domain"

	"github.com/google/uuid"
)

// DecodePayload auto-detects batch vs single payload and assigns missing event IDs.
// Params: raw JSON bytes with one object or one array.
// Returns: normalized events or decode/validation error.
func DecodePayload(raw []byte) ([]domain.Event, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}

	var events []domain.Event
	if payload[0] == '[' {
		decoder := json.NewDecoder(bytes.NewReader(payload))
		batch, err := domain.DecodeEventsReader(decoder)
		if err != nil {
			return nil, err
		}
		if err := ensureJSONEOF(decoder); err != nil {
			return nil, err
		}
		events = batch
	} else {
		event, err := domain.DecodeEvent(payload)
		if err != nil {
			return nil, err
		}
		events = []domain.Event{event}
	}
	assignEventIDs(events)
	return events, nil
}

// assignEventIDs gives every event without producer ID a random one.
func assignEventIDs(events []domain.Event) {
	for i := range events {
		if events[i].EventID == "" {
			events[i].EventID = uuid.NewString()
		}
	}
}

// ensureJSONEOF rejects trailing tokens after a decoded JSON payload.
// Params: decoder positioned after primary decode.
// Returns: nil on EOF or error on trailing tokens.
func ensureJSONEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode trailing json: %w", err)
	}
	return errors.New("unexpected trailing json tokens")
}

// pushEvents sends events to sink with optional batch support.
// Params: context, event sink, and event slice.
// Returns: first push error or nil.
func pushEvents(ctx context.Context, sink EventSink, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) > 1 {
		if batchSink, ok := sink.(BatchEventSink); ok {
			return batchSink.PushBatch(ctx, events)
		}
	}
	for _, event := range events {
		if err := sink.Push(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
