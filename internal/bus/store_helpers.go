package bus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aivp/internal/runtimedb"
)

const eventColumns = "event_id, envelope_version, event_type, event_source, correlation_id, payload_json, created_at, persisted_at, ack_state, acked_at"

func getEvent(ctx context.Context, db *sql.DB, eventID string) (*PersistedEvent, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM bus_events WHERE event_id = ?", eventID)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

func scanEvent(scanner interface{ Scan(dest ...any) error }) (*PersistedEvent, error) {
	var (
		event         PersistedEvent
		correlationID sql.NullString
		payloadRaw    string
		createdRaw    string
		persistedRaw  string
		ackState      string
		ackedRaw      sql.NullString
	)
	if err := scanner.Scan(
		&event.EventID,
		&event.EnvelopeVersion,
		&event.EventType,
		&event.Source,
		&correlationID,
		&payloadRaw,
		&createdRaw,
		&persistedRaw,
		&ackState,
		&ackedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}

	payload, err := decodePayload(payloadRaw)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", event.EventID, err)
	}
	event.Payload = payload
	event.CorrelationID = correlationID.String
	event.AckState = AckState(ackState)
	event.CreatedAt = parseTime(createdRaw)
	event.PersistedAt = parseTime(persistedRaw)
	if ackedRaw.Valid {
		acked := parseTime(ackedRaw.String)
		event.AckedAt = &acked
	}
	return &event, nil
}

func parseTime(value string) time.Time {
	t, err := runtimedb.ParseTimestamp(value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
