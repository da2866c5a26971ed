package runtimedb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

//go:embed schema_state.sql
var schemaStateSQL string

// DefaultMigrationVersion seeds schema_state when Bootstrap is given no version.
const DefaultMigrationVersion = "v1alpha1"

// Result describes the outcome of Bootstrap.
type Result struct {
	Path             string `json:"db_path"`
	MigrationVersion string `json:"migration_version"`
	JournalMode      string `json:"journal_mode"`
	WALEnabled       bool   `json:"wal_enabled"`
	CreatedStateRow  bool   `json:"created_state_row"`
}

// SchemaState is the singleton migration marker row.
type SchemaState struct {
	MigrationVersion string    `json:"migration_version"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Bootstrap initializes the database at path: WAL journaling, the schema_state
// table, and the singleton row seeded with initialVersion when absent. An
// existing version is never overridden.
func Bootstrap(ctx context.Context, path, initialVersion string) (Result, error) {
	ctx = ensureContext(ctx)
	initialVersion = strings.TrimSpace(initialVersion)
	if initialVersion == "" {
		initialVersion = DefaultMigrationVersion
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := Open(ctx, path)
	if err != nil {
		return Result{}, err
	}
	defer db.Close()

	// journal_mode cannot change inside a transaction.
	err = RetryOnBusy(ctx, func() error {
		var requested string
		if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&requested); err != nil {
			return fmt.Errorf("enable wal: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{Path: path}
	err = RetryOnBusy(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin bootstrap tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaStateSQL); err != nil {
			return fmt.Errorf("create schema_state: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO schema_state (id, migration_version) VALUES (1, ?)
             ON CONFLICT(id) DO NOTHING`,
			initialVersion,
		)
		if err != nil {
			return fmt.Errorf("seed schema_state: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("seed schema_state rows: %w", err)
		}
		if err := tx.QueryRowContext(ctx,
			"SELECT migration_version FROM schema_state WHERE id = 1",
		).Scan(&result.MigrationVersion); err != nil {
			return fmt.Errorf("read migration version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit bootstrap: %w", err)
		}
		result.CreatedStateRow = affected > 0
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return Result{}, fmt.Errorf("read journal mode: %w", err)
	}
	result.JournalMode = strings.ToLower(strings.TrimSpace(mode))
	if result.JournalMode == "" {
		result.JournalMode = "unknown"
	}
	result.WALEnabled = result.JournalMode == "wal"
	return result, nil
}

// State reads the schema_state row. ok is false when the database file, the
// table, or the row does not exist. The file is never created here.
func State(ctx context.Context, path string) (SchemaState, bool, error) {
	ctx = ensureContext(ctx)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return SchemaState{}, false, nil
		}
		return SchemaState{}, false, fmt.Errorf("stat database: %w", err)
	}

	db, err := Open(ctx, path)
	if err != nil {
		return SchemaState{}, false, err
	}
	defer db.Close()

	exists, err := tableExists(ctx, db, "schema_state")
	if err != nil {
		return SchemaState{}, false, err
	}
	if !exists {
		return SchemaState{}, false, nil
	}

	var (
		state      SchemaState
		updatedRaw sql.NullString
	)
	err = db.QueryRowContext(ctx,
		"SELECT migration_version, updated_at FROM schema_state WHERE id = 1",
	).Scan(&state.MigrationVersion, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return SchemaState{}, false, nil
	}
	if err != nil {
		return SchemaState{}, false, fmt.Errorf("read schema_state: %w", err)
	}
	if updated, parseErr := ParseTimestamp(updatedRaw.String); parseErr == nil {
		state.UpdatedAt = updated
	}
	return state, true, nil
}

// GetVersion returns the stored migration version, if any.
func GetVersion(ctx context.Context, path string) (string, bool, error) {
	state, ok, err := State(ctx, path)
	if err != nil || !ok {
		return "", ok, err
	}
	return state.MigrationVersion, true, nil
}

// SetVersion upserts the singleton row and bumps updated_at.
func SetVersion(ctx context.Context, path, version string) error {
	ctx = ensureContext(ctx)
	version = strings.TrimSpace(version)
	if version == "" {
		return errors.New("migration version is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := Open(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	return RetryOnBusy(ctx, func() error {
		if _, err := db.ExecContext(ctx, schemaStateSQL); err != nil {
			return fmt.Errorf("create schema_state: %w", err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_state (id, migration_version) VALUES (1, ?)
             ON CONFLICT(id) DO UPDATE SET
                 migration_version = excluded.migration_version,
                 updated_at = `+nowExpr,
			version,
		); err != nil {
			return fmt.Errorf("set migration version: %w", err)
		}
		return nil
	})
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("check %s table: %w", name, err)
	}
	return count > 0, nil
}
