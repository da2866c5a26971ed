package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"aivp/internal/logging"
	"aivp/internal/pidlock"
)

// Signaler delivers sig to pid.
type Signaler func(pid int, sig unix.Signal) error

// HeartbeatHook observes each completed heartbeat.
type HeartbeatHook func(ctx context.Context, beat int)

// Option customizes a Runner.
type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logging.NewComponentLogger(logger, "daemon")
		}
	}
}

func WithProbe(probe pidlock.Probe) Option {
	return func(r *Runner) {
		if probe != nil {
			r.probe = probe
		}
	}
}

func WithSignaler(signaler Signaler) Option {
	return func(r *Runner) {
		if signaler != nil {
			r.signal = signaler
		}
	}
}

func WithStopTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.stopTimeout = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithHeartbeatHook(hook HeartbeatHook) Option {
	return func(r *Runner) { r.hook = hook }
}

// Runner owns the daemon lifecycle for one pid lock path.
type Runner struct {
	pidPath      string
	logger       *slog.Logger
	probe        pidlock.Probe
	signal       Signaler
	stopTimeout  time.Duration
	pollInterval time.Duration
	hook         HeartbeatHook
}

// NewRunner constructs a runner for the lock file at pidPath.
func NewRunner(pidPath string, opts ...Option) *Runner {
	r := &Runner{
		pidPath:      pidPath,
		logger:       logging.NewComponentLogger(nil, "daemon"),
		probe:        pidlock.ProcessRunning,
		signal:       unix.Kill,
		stopTimeout:  DefaultStopTimeout,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// PIDPath returns the lock file path.
func (r *Runner) PIDPath() string { return r.pidPath }

// Start acquires the pid lock and runs the heartbeat loop in the foreground.
// A live holder yields StatusAlreadyRunning with its pid and no error.
func (r *Runner) Start(ctx context.Context, opts StartOptions) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	lock := pidlock.New(r.pidPath, pidlock.WithProbe(r.probe))
	if err := lock.Acquire(); err != nil {
		var held *pidlock.HeldError
		if errors.As(err, &held) {
			r.logger.Info("daemon already running",
				logging.String(logging.FieldEventType, "daemon_already_running"),
				logging.Int(logging.FieldPID, held.PID),
				logging.String(logging.FieldLockPath, r.pidPath),
			)
			return Result{Status: StatusAlreadyRunning, Message: "daemon already running", PID: held.PID}, nil
		}
		return Result{}, fmt.Errorf("acquire pid lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logging.WarnWithContext(r.logger, "release pid lock failed", "pid_lock_release_failed",
				logging.Error(err),
				logging.String(logging.FieldLockPath, r.pidPath),
				logging.String(logging.FieldErrorHint, "remove the lock file manually if no daemon is running"),
			)
		}
	}()

	pid := lock.PID()
	r.logger.Info("daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.Int(logging.FieldPID, pid),
		logging.String(logging.FieldLockPath, r.pidPath),
	)

	beats := 0
	if opts.MaxBeats != 0 {
		var err error
		beats, err = r.loop(ctx, opts)
		if err != nil {
			return Result{}, err
		}
	}

	r.logger.Info("daemon exiting",
		logging.String(logging.FieldEventType, "daemon_exiting"),
		logging.Int(logging.FieldPID, pid),
		logging.Int("heartbeats", beats),
	)
	return Result{
		Status:  StatusStarted,
		Message: fmt.Sprintf("daemon exited after %d heartbeat(s)", beats),
		PID:     pid,
	}, nil
}

func (r *Runner) loop(ctx context.Context, opts StartOptions) (int, error) {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := opts.interval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	beats := 0
	for {
		select {
		case <-signalCtx.Done():
			r.logger.Info("daemon interrupted",
				logging.String(logging.FieldEventType, "daemon_interrupted"),
				logging.Int("heartbeats", beats),
			)
			return beats, nil
		case <-timer.C:
			beats++
			r.logger.Debug("heartbeat", logging.Int("beat", beats))
			if r.hook != nil {
				r.hook(signalCtx, beats)
			}
			if opts.MaxBeats > 0 && beats >= opts.MaxBeats {
				return beats, nil
			}
			timer.Reset(interval)
		}
	}
}

// Stop asks the recorded daemon to exit with SIGTERM and waits up to the stop
// timeout for it to disappear.
func (r *Runner) Stop(ctx context.Context) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	pid, ok, err := pidlock.ReadPID(r.pidPath)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Status: StatusNotRunning, Message: "daemon not running"}, nil
	}
	if !r.probe(pid) {
		if err := r.cleanup(pid); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusStopped, Message: "removed stale pid lock", PID: pid}, nil
	}
	if pid == os.Getpid() {
		return Result{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	if err := r.signal(pid, unix.SIGTERM); err != nil {
		if !errors.Is(err, unix.ESRCH) {
			return Result{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
		}
		if err := r.cleanup(pid); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusStopped, Message: "daemon exited before signal", PID: pid}, nil
	}
	r.logger.Info("stop signal sent",
		logging.String(logging.FieldEventType, "daemon_stop_signaled"),
		logging.Int(logging.FieldPID, pid),
	)

	deadline := time.Now().Add(r.stopTimeout)
	for {
		if !r.probe(pid) {
			if err := r.cleanup(pid); err != nil {
				return Result{}, err
			}
			return Result{Status: StatusStopped, Message: "daemon stopped", PID: pid}, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := r.pollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(wait):
		}
	}

	logging.WarnWithContext(r.logger, "daemon did not exit before stop timeout", "daemon_stop_unconfirmed",
		logging.Int(logging.FieldPID, pid),
		logging.Duration("stop_timeout", r.stopTimeout),
		logging.String(logging.FieldErrorHint, "check the process and retry stop"),
	)
	return Result{
		Status:  StatusStopRequested,
		Message: fmt.Sprintf("sent SIGTERM; daemon still running after %s", r.stopTimeout),
		PID:     pid,
	}, nil
}

// Restart stops any running daemon and starts a new one in this process. An
// unconfirmed stop aborts with StatusAlreadyRunning.
func (r *Runner) Restart(ctx context.Context, opts StartOptions) (Result, error) {
	stopped, err := r.Stop(ctx)
	if err != nil {
		return Result{}, err
	}
	if stopped.Status == StatusStopRequested {
		return Result{
			Status:  StatusAlreadyRunning,
			Message: "previous daemon did not stop; restart aborted",
			PID:     stopped.PID,
		}, nil
	}
	started, err := r.Start(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	if started.Status != StatusStarted {
		return started, nil
	}
	return Result{Status: StatusRestartComplete, Message: started.Message, PID: started.PID}, nil
}

func (r *Runner) cleanup(pid int) error {
	if _, err := pidlock.RemoveIfPID(r.pidPath, pid); err != nil {
		return fmt.Errorf("clean up pid lock: %w", err)
	}
	return nil
}
