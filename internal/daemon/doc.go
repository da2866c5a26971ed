// Package daemon runs the foreground aivp heartbeat process and controls it
// from other processes through the pid lock.
//
// Start claims the pid lock and loops on a heartbeat timer until a signal,
// context cancellation, or the beat budget ends it; the lock is released on
// every exit path. Stop and Restart read the lock file, deliver SIGTERM, and
// poll liveness. Lifecycle races are reported as Result statuses rather than
// errors so the CLI can map them to exit codes.
package daemon
