// Package pidlock implements the single-instance pid file used by the aivp
// daemon.
//
// The lock file holds the holder's decimal pid. Acquisition creates it with
// O_CREAT|O_EXCL; a file whose pid is unreadable or names a dead process is
// reclaimed. A sibling "<path>.guard" advisory lock serializes the
// check-then-act steps between cooperating processes.
package pidlock
