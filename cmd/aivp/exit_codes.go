package main

import (
	"errors"
	"fmt"

	"aivp/internal/bus"
)

const (
	exitOK             = 0
	exitFailure        = 1
	exitAlreadyRunning = 2
	exitStopRequested  = 3
	exitWALDisabled    = 4
	exitDuplicateEvent = 5
	exitAckNotApplied  = 6
)

// exitError carries a process exit code. A nil err means the command already
// reported its outcome on stdout.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var coded *exitError
	if errors.As(err, &coded) {
		return coded.code
	}
	if errors.Is(err, bus.ErrDuplicateEvent) {
		return exitDuplicateEvent
	}
	return exitFailure
}
