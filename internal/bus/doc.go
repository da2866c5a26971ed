// Package bus persists versioned event envelopes in the runtime SQLite
// database and tracks their acknowledgment state.
//
// Every event starts pending and moves exactly once to acked or nacked.
// Acknowledge is idempotent for the state already applied. Pending events are
// listed oldest first; created_at has whole-second precision, so ties break on
// event id. The store opens a connection per operation and holds nothing
// between calls, so several processes can share one database file.
package bus
