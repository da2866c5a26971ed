package main

import (
	"testing"

	"aivp/internal/bus"
)

func TestBusPublishAckFlow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, stderr, code := runCLI(t, env, "bus", "publish",
		"--type", "trigger.schedule",
		"--source", "scheduler",
		"--payload", `{"agent_id":"vp-expenses"}`,
		"--correlation-id", "corr-1",
		"--event-id", "evt-1",
	)
	requireCode(t, code, exitOK, stderr)
	var event bus.PersistedEvent
	decodeJSON(t, out, &event)
	if event.EventID != "evt-1" || event.AckState != bus.AckPending || event.Payload["agent_id"] != "vp-expenses" {
		t.Fatalf("unexpected published event %+v", event)
	}

	_, stderr, code = runCLI(t, env, "bus", "publish", "--type", "trigger.schedule", "--source", "scheduler", "--event-id", "evt-1")
	requireCode(t, code, exitDuplicateEvent, stderr)

	out, stderr, code = runCLI(t, env, "bus", "pending", "--json")
	requireCode(t, code, exitOK, stderr)
	var pending []bus.PersistedEvent
	decodeJSON(t, out, &pending)
	if len(pending) != 1 || pending[0].CorrelationID != "corr-1" {
		t.Fatalf("unexpected pending events %+v", pending)
	}

	out, stderr, code = runCLI(t, env, "bus", "ack", "evt-1")
	requireCode(t, code, exitOK, stderr)
	var ack ackOutput
	decodeJSON(t, out, &ack)
	if !ack.Applied || ack.AckState != bus.AckAcked {
		t.Fatalf("unexpected ack output %+v", ack)
	}

	out, stderr, code = runCLI(t, env, "bus", "ack", "evt-1", "--nack")
	requireCode(t, code, exitAckNotApplied, stderr)
	decodeJSON(t, out, &ack)
	if ack.Applied {
		t.Fatalf("expected conflicting nack to be rejected, got %+v", ack)
	}

	out, stderr, code = runCLI(t, env, "bus", "stats", "--json")
	requireCode(t, code, exitOK, stderr)
	var stats map[string]int
	decodeJSON(t, out, &stats)
	if stats["acked"] != 1 || stats["pending"] != 0 || stats["nacked"] != 0 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestBusPublishRejectsInvalidInput(t *testing.T) {
	env := setupCLITestEnv(t)

	_, stderr, code := runCLI(t, env, "bus", "publish", "--type", "t", "--source", "s", "--payload", "[1,2]")
	requireCode(t, code, exitFailure, stderr)
	requireContains(t, stderr, "payload must be a JSON object")

	_, stderr, code = runCLI(t, env, "bus", "publish", "--type", " ", "--source", "s")
	requireCode(t, code, exitFailure, stderr)
	requireContains(t, stderr, "event_type must be non-empty")
}

func TestBusGetUnknownEvent(t *testing.T) {
	env := setupCLITestEnv(t)
	_, stderr, code := runCLI(t, env, "bus", "get", "missing")
	requireCode(t, code, exitFailure, stderr)
	requireContains(t, stderr, "event missing not found")
}

func TestBusPendingTable(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, code := runCLI(t, env, "bus", "pending")
	requireCode(t, code, exitOK, "")
	requireContains(t, out, "No pending events")

	_, stderr, code := runCLI(t, env, "bus", "publish", "--type", "trigger.schedule", "--source", "scheduler", "--event-id", "evt-table")
	requireCode(t, code, exitOK, stderr)

	out, stderr, code = runCLI(t, env, "bus", "pending")
	requireCode(t, code, exitOK, stderr)
	requireContains(t, out, "Event ID")
	requireContains(t, out, "evt-table")
}

func TestBusStatsTable(t *testing.T) {
	env := setupCLITestEnv(t)
	out, stderr, code := runCLI(t, env, "bus", "stats")
	requireCode(t, code, exitOK, stderr)
	requireContains(t, out, "Pending")
	requireContains(t, out, "Nacked")
	requireContains(t, out, "Total")
}

func TestBusAckRejectsNonTerminalState(t *testing.T) {
	env := setupCLITestEnv(t)

	_, stderr, code := runCLI(t, env, "bus", "publish", "--type", "t", "--source", "s", "--event-id", "evt-state")
	requireCode(t, code, exitOK, stderr)

	_, stderr, code = runCLI(t, env, "bus", "ack", "evt-state", "--state", "pending")
	requireCode(t, code, exitFailure, stderr)
	requireContains(t, stderr, "ack state must be acked or nacked")

	out, stderr, code := runCLI(t, env, "bus", "ack", "evt-state", "--state", "NACKED")
	requireCode(t, code, exitOK, stderr)
	var ack ackOutput
	decodeJSON(t, out, &ack)
	if !ack.Applied || ack.AckState != bus.AckNacked {
		t.Fatalf("unexpected ack output %+v", ack)
	}
}

func TestBusPublishKeepsLargeIntegers(t *testing.T) {
	env := setupCLITestEnv(t)

	_, stderr, code := runCLI(t, env, "bus", "publish", "--type", "t", "--source", "s",
		"--event-id", "evt-big", "--payload", `{"n":9007199254740993}`)
	requireCode(t, code, exitOK, stderr)

	out, stderr, code := runCLI(t, env, "bus", "get", "evt-big")
	requireCode(t, code, exitOK, stderr)
	requireContains(t, out, "9007199254740993")

	_, stderr, code = runCLI(t, env, "bus", "publish", "--type", "t", "--source", "s", "--payload", `{"a":1} {"b":2}`)
	requireCode(t, code, exitFailure, stderr)
	requireContains(t, stderr, "payload must be a JSON object")
}
