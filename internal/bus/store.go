package bus

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aivp/internal/logging"
	"aivp/internal/runtimedb"
)

//go:embed schema.sql
var schemaSQL string

// Option customizes a Store.
type Option func(*Store)

// WithClock injects the time source used for created_at and acked_at.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "bus")
		}
	}
}

// WithMigrationVersion sets the version seeded when the database is new.
func WithMigrationVersion(version string) Option {
	return func(s *Store) { s.migrationVersion = version }
}

// Store is the SQLite-backed event bus.
type Store struct {
	path             string
	clock            func() time.Time
	logger           *slog.Logger
	migrationVersion string
}

// Open bootstraps the database at path and ensures the bus tables exist.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Store{
		path:             path,
		clock:            time.Now,
		logger:           logging.NewComponentLogger(nil, "bus"),
		migrationVersion: runtimedb.DefaultMigrationVersion,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if _, err := runtimedb.Bootstrap(ctx, path, s.migrationVersion); err != nil {
		return nil, fmt.Errorf("bootstrap bus storage: %w", err)
	}
	err := s.withDB(ctx, func(db *sql.DB) error {
		return runtimedb.RetryOnBusy(ctx, func() error {
			if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create bus tables: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) now() time.Time { return s.clock().UTC() }

func (s *Store) withDB(ctx context.Context, fn func(*sql.DB) error) error {
	db, err := runtimedb.Open(ctx, s.path)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

// Publish stores env as a pending event and returns the committed row.
func (s *Store) Publish(ctx context.Context, env Envelope) (*PersistedEvent, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	payload, err := encodePayload(env.Payload)
	if err != nil {
		return nil, err
	}
	createdAt := env.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var persisted *PersistedEvent
	err = s.withDB(ctx, func(db *sql.DB) error {
		err := runtimedb.RetryOnBusy(ctx, func() error {
			_, err := db.ExecContext(ctx,
				`INSERT INTO bus_events (
                    event_id, envelope_version, event_type, event_source,
                    correlation_id, payload_json, created_at, ack_state
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				env.EventID,
				env.EnvelopeVersion,
				env.EventType,
				env.Source,
				nullableString(env.CorrelationID),
				payload,
				runtimedb.FormatTimestamp(createdAt),
				string(AckPending),
			)
			return err
		})
		if err != nil {
			if runtimedb.IsConstraint(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateEvent, env.EventID)
			}
			return fmt.Errorf("insert event: %w", err)
		}
		persisted, err = getEvent(ctx, db, env.EventID)
		if err != nil {
			return err
		}
		if persisted == nil {
			return fmt.Errorf("published event %s could not be read back", env.EventID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("event published",
		logging.String(logging.FieldEventType, "bus_event_published"),
		logging.String(logging.FieldEventID, persisted.EventID),
		logging.String(logging.FieldBusEventType, persisted.EventType),
		logging.String("event_source", persisted.Source),
	)
	return persisted, nil
}

// Get returns the event with eventID, or nil when none exists.
func (s *Store) Get(ctx context.Context, eventID string) (*PersistedEvent, error) {
	var event *PersistedEvent
	err := s.withDB(ctx, func(db *sql.DB) error {
		var err error
		event, err = getEvent(ctx, db, eventID)
		return err
	})
	return event, err
}

// ListPending returns up to limit pending events, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]PersistedEvent, error) {
	events := []PersistedEvent{}
	if limit <= 0 {
		return events, nil
	}
	err := s.withDB(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT `+eventColumns+` FROM bus_events
             WHERE ack_state = ?
             ORDER BY created_at ASC, event_id ASC
             LIMIT ?`,
			string(AckPending), limit,
		)
		if err != nil {
			return fmt.Errorf("list pending events: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				return err
			}
			events = append(events, *event)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Acknowledge moves a pending event to state. It reports true when the event
// is in state afterwards, including when it already was. Unknown ids and
// events already in the other terminal state report false.
func (s *Store) Acknowledge(ctx context.Context, eventID string, state AckState) (bool, error) {
	if !state.Terminal() {
		return false, fmt.Errorf("%w: %q", ErrInvalidAckState, state)
	}

	var applied bool
	err := s.withDB(ctx, func(db *sql.DB) error {
		var affected int64
		err := runtimedb.RetryOnBusy(ctx, func() error {
			res, err := db.ExecContext(ctx,
				`UPDATE bus_events SET ack_state = ?, acked_at = ?
                 WHERE event_id = ? AND ack_state = ?`,
				string(state),
				runtimedb.FormatTimestamp(s.now()),
				eventID,
				string(AckPending),
			)
			if err != nil {
				return err
			}
			affected, err = res.RowsAffected()
			return err
		})
		if err != nil {
			return fmt.Errorf("acknowledge event: %w", err)
		}
		if affected > 0 {
			applied = true
			return nil
		}

		var current string
		err = db.QueryRowContext(ctx,
			"SELECT ack_state FROM bus_events WHERE event_id = ?", eventID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ack state: %w", err)
		}
		applied = AckState(current) == state
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		s.logger.Info("event acknowledged",
			logging.String(logging.FieldEventType, "bus_event_acknowledged"),
			logging.String(logging.FieldEventID, eventID),
			logging.String(logging.FieldAckState, string(state)),
		)
	} else {
		s.logger.Debug("acknowledgment not applied",
			logging.String(logging.FieldEventID, eventID),
			logging.String(logging.FieldAckState, string(state)),
		)
	}
	return applied, nil
}

// Stats counts events per ack state. Every state is present in the result.
func (s *Store) Stats(ctx context.Context) (map[AckState]int, error) {
	stats := make(map[AckState]int, len(AckStates))
	for _, state := range AckStates {
		stats[state] = 0
	}
	err := s.withDB(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT ack_state, COUNT(*) FROM bus_events GROUP BY ack_state")
		if err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				state string
				count int
			)
			if err := rows.Scan(&state, &count); err != nil {
				return fmt.Errorf("scan event count: %w", err)
			}
			stats[AckState(strings.TrimSpace(state))] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
