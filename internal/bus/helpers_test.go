package bus_test

import (
	"context"
	"testing"

	"aivp/internal/runtimedb"
)

func readPayloadJSON(t *testing.T, path, eventID string) string {
	t.Helper()
	db, err := runtimedb.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	var raw string
	if err := db.QueryRow("SELECT payload_json FROM bus_events WHERE event_id = ?", eventID).Scan(&raw); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	return raw
}
