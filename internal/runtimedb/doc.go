// Package runtimedb bootstraps the embedded SQLite database shared by the aivp
// runtime and tracks its migration version.
//
// Bootstrap is idempotent: it enables write-ahead logging, relaxes fsync to
// NORMAL, enforces foreign keys, and inserts the singleton schema_state row
// only when it is absent, so the first successful call fixes the migration
// version until SetVersion changes it explicitly. The package also owns the
// per-operation connection opener and the SQLITE_BUSY retry helper that the
// event bus builds on; callers open a handle for one logical operation and
// close it before returning.
package runtimedb
