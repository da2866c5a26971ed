package bus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the schema version stamped on new envelopes.
const EnvelopeVersion = "v1"

// AckState is the acknowledgment state of a stored event.
type AckState string

const (
	AckPending AckState = "pending"
	AckAcked   AckState = "acked"
	AckNacked  AckState = "nacked"
)

// AckStates lists every state in lifecycle order.
var AckStates = []AckState{AckPending, AckAcked, AckNacked}

// Terminal reports whether s is a valid acknowledgment target.
func (s AckState) Terminal() bool {
	return s == AckAcked || s == AckNacked
}

// ParseAckState parses a terminal state name.
func ParseAckState(value string) (AckState, error) {
	state := AckState(strings.ToLower(strings.TrimSpace(value)))
	if !state.Terminal() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAckState, value)
	}
	return state, nil
}

// Envelope is an event as submitted by a producer. A zero CreatedAt is stamped
// by the store clock on publish.
type Envelope struct {
	EventID         string         `json:"event_id"`
	EnvelopeVersion string         `json:"envelope_version"`
	EventType       string         `json:"event_type"`
	Source          string         `json:"event_source"`
	CorrelationID   string         `json:"correlation_id,omitempty"`
	Payload         map[string]any `json:"payload"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewEnvelope returns a v1 envelope with a random event id.
func NewEnvelope(eventType, source string, payload map[string]any) Envelope {
	return Envelope{
		EventID:         uuid.NewString(),
		EnvelopeVersion: EnvelopeVersion,
		EventType:       eventType,
		Source:          source,
		Payload:         payload,
	}
}

// Validate checks required fields. Failures match ErrInvalidEnvelope.
func (e Envelope) Validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"event_id", e.EventID},
		{"envelope_version", e.EnvelopeVersion},
		{"event_type", e.EventType},
		{"event_source", e.Source},
	} {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: %s must be non-empty", ErrInvalidEnvelope, field.name)
		}
	}
	return nil
}

// PersistedEvent is an event row as stored.
type PersistedEvent struct {
	Envelope
	PersistedAt time.Time  `json:"persisted_at"`
	AckState    AckState   `json:"ack_state"`
	AckedAt     *time.Time `json:"acked_at,omitempty"`
}

// encodePayload renders payload as compact JSON with sorted object keys.
func encodePayload(payload map[string]any) (string, error) {
	if payload == nil {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("%w: payload is not serializable: %v", ErrInvalidEnvelope, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func decodePayload(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	payload, err := DecodePayload([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// DecodePayload parses a single JSON object. Numbers decode as json.Number so
// integers beyond float64 precision survive a round trip.
func DecodePayload(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON object")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}
