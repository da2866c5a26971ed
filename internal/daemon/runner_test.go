package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"aivp/internal/daemon"
	"aivp/internal/testsupport"
)

func pidPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "daemon.pid")
}

func TestStartReportsAlreadyRunning(t *testing.T) {
	path := pidPath(t)
	testsupport.WritePIDFile(t, path, os.Getpid())

	result, err := daemon.NewRunner(path).Start(context.Background(), daemon.StartOptions{MaxBeats: 0})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if result.Status != daemon.StatusAlreadyRunning || result.PID != os.Getpid() {
		t.Fatalf("expected already_running with pid %d, got %+v", os.Getpid(), result)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected existing lock untouched: %v", err)
	}
}

func TestStartRunsBoundedHeartbeats(t *testing.T) {
	path := pidPath(t)
	var beats atomic.Int32
	runner := daemon.NewRunner(path, daemon.WithHeartbeatHook(func(_ context.Context, beat int) {
		beats.Store(int32(beat))
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected lock file during run: %v", err)
		}
	}))

	result, err := runner.Start(context.Background(), daemon.StartOptions{Heartbeat: 10 * time.Millisecond, MaxBeats: 3})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if result.Status != daemon.StatusStarted || result.PID != os.Getpid() {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := beats.Load(); got != 3 {
		t.Fatalf("expected 3 heartbeats, got %d", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock released, stat err=%v", err)
	}
}

func TestStartWithZeroBeatsCanRepeat(t *testing.T) {
	runner := daemon.NewRunner(pidPath(t))
	for i := 0; i < 2; i++ {
		result, err := runner.Start(context.Background(), daemon.StartOptions{MaxBeats: 0})
		if err != nil {
			t.Fatalf("Start #%d returned error: %v", i+1, err)
		}
		if result.Status != daemon.StatusStarted {
			t.Fatalf("Start #%d: expected started, got %+v", i+1, result)
		}
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	path := pidPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := daemon.NewRunner(path, daemon.WithHeartbeatHook(func(context.Context, int) { cancel() }))

	result, err := runner.Start(ctx, daemon.StartOptions{Heartbeat: 10 * time.Millisecond, MaxBeats: daemon.UnlimitedBeats})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if result.Status != daemon.StatusStarted {
		t.Fatalf("expected started, got %+v", result)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock released after cancel, stat err=%v", err)
	}
}

func TestStopNotRunning(t *testing.T) {
	result, err := daemon.NewRunner(pidPath(t)).Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if result.Status != daemon.StatusNotRunning || result.PID != 0 {
		t.Fatalf("expected not_running, got %+v", result)
	}
}

func TestStopRemovesStaleLock(t *testing.T) {
	path := pidPath(t)
	testsupport.WritePIDFile(t, path, 4242)
	runner := daemon.NewRunner(path, daemon.WithProbe(func(int) bool { return false }))

	result, err := runner.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if result.Status != daemon.StatusStopped || result.PID != 4242 {
		t.Fatalf("expected stopped for 4242, got %+v", result)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected stale lock removed, stat err=%v", err)
	}
}

func TestStopSignalsAndWaits(t *testing.T) {
	path := pidPath(t)
	testsupport.WritePIDFile(t, path, 4242)

	var probes atomic.Int32
	var signaled atomic.Int32
	runner := daemon.NewRunner(path,
		daemon.WithProbe(func(int) bool { return probes.Add(1) <= 2 }),
		daemon.WithSignaler(func(pid int, sig unix.Signal) error {
			if pid != 4242 || sig != unix.SIGTERM {
				t.Errorf("unexpected signal %v to %d", sig, pid)
			}
			signaled.Add(1)
			return nil
		}),
		daemon.WithPollInterval(time.Millisecond),
	)

	result, err := runner.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if result.Status != daemon.StatusStopped {
		t.Fatalf("expected stopped, got %+v", result)
	}
	if signaled.Load() != 1 {
		t.Fatalf("expected one SIGTERM, got %d", signaled.Load())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock removed, stat err=%v", err)
	}
}

func TestStopTreatsVanishedTargetAsStopped(t *testing.T) {
	path := pidPath(t)
	testsupport.WritePIDFile(t, path, 4242)
	runner := daemon.NewRunner(path,
		daemon.WithProbe(func(int) bool { return true }),
		daemon.WithSignaler(func(int, unix.Signal) error { return unix.ESRCH }),
	)

	result, err := runner.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if result.Status != daemon.StatusStopped {
		t.Fatalf("expected stopped, got %+v", result)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock removed, stat err=%v", err)
	}
}

func TestStopPropagatesSignalFailure(t *testing.T) {
	path := pidPath(t)
	testsupport.WritePIDFile(t, path, 4242)
	runner := daemon.NewRunner(path,
		daemon.WithProbe(func(int) bool { return true }),
		daemon.WithSignaler(func(int, unix.Signal) error { return unix.EPERM }),
	)

	if _, err := runner.Stop(context.Background()); !errors.Is(err, unix.EPERM) {
		t.Fatalf("expected EPERM, got %v", err)
	}
}

func TestStopRefusesCurrentProcess(t *testing.T) {
	path := pidPath(t)
	testsupport.WritePIDFile(t, path, os.Getpid())
	signaled := false
	runner := daemon.NewRunner(path, daemon.WithSignaler(func(int, unix.Signal) error {
		signaled = true
		return nil
	}))

	if _, err := runner.Stop(context.Background()); err == nil {
		t.Fatal("expected error when lock names the current process")
	}
	if signaled {
		t.Fatal("expected no signal to the current process")
	}
}

func TestStopTimeoutReportsStopRequested(t *testing.T) {
	path := pidPath(t)
	testsupport.WritePIDFile(t, path, 4242)
	runner := daemon.NewRunner(path,
		daemon.WithProbe(func(int) bool { return true }),
		daemon.WithSignaler(func(int, unix.Signal) error { return nil }),
		daemon.WithStopTimeout(20*time.Millisecond),
		daemon.WithPollInterval(5*time.Millisecond),
	)

	result, err := runner.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if result.Status != daemon.StatusStopRequested || result.PID != 4242 {
		t.Fatalf("expected stop_requested for 4242, got %+v", result)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected lock to remain: %v", err)
	}
}

func TestRestartAbortsWhenStopUnconfirmed(t *testing.T) {
	path := pidPath(t)
	testsupport.WritePIDFile(t, path, 4242)
	runner := daemon.NewRunner(path,
		daemon.WithProbe(func(int) bool { return true }),
		daemon.WithSignaler(func(int, unix.Signal) error { return nil }),
		daemon.WithStopTimeout(0),
	)

	result, err := runner.Restart(context.Background(), daemon.StartOptions{MaxBeats: 0})
	if err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}
	if result.Status != daemon.StatusAlreadyRunning || result.PID != 4242 {
		t.Fatalf("expected already_running for 4242, got %+v", result)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "4242\n" {
		t.Fatalf("expected original lock untouched, got %q", data)
	}
}

func TestRestartComplete(t *testing.T) {
	path := pidPath(t)
	testsupport.WritePIDFile(t, path, 4242)
	self := os.Getpid()
	runner := daemon.NewRunner(path,
		daemon.WithProbe(func(pid int) bool { return pid == self }),
		daemon.WithSignaler(func(int, unix.Signal) error { return nil }),
	)

	result, err := runner.Restart(context.Background(), daemon.StartOptions{MaxBeats: 0})
	if err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}
	if result.Status != daemon.StatusRestartComplete || result.PID != self {
		t.Fatalf("expected restart_complete for %d, got %+v", self, result)
	}
}

func TestResultJSONOmitsUnknownPID(t *testing.T) {
	data, err := json.Marshal(daemon.Result{Status: daemon.StatusNotRunning, Message: "daemon not running"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"status":"not_running","message":"daemon not running"}` {
		t.Fatalf("unexpected json %s", data)
	}
	data, _ = json.Marshal(daemon.Result{Status: daemon.StatusStarted, Message: "ok", PID: 7})
	if string(data) != `{"status":"started","message":"ok","pid":`+strconv.Itoa(7)+`}` {
		t.Fatalf("unexpected json %s", data)
	}
}

func TestStartSignalStopsLoopAndReleasesLock(t *testing.T) {
	for _, sig := range []unix.Signal{unix.SIGTERM, unix.SIGINT} {
		t.Run(sig.String(), func(t *testing.T) {
			path := pidPath(t)
			var beats atomic.Int32
			runner := daemon.NewRunner(path, daemon.WithHeartbeatHook(func(_ context.Context, beat int) {
				beats.Store(int32(beat))
				if beat == 1 {
					if err := unix.Kill(os.Getpid(), sig); err != nil {
						t.Errorf("send %s: %v", sig, err)
					}
				}
			}))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			result, err := runner.Start(ctx, daemon.StartOptions{Heartbeat: 10 * time.Millisecond, MaxBeats: daemon.UnlimitedBeats})
			if err != nil {
				t.Fatalf("Start returned error: %v", err)
			}
			if ctx.Err() != nil {
				t.Fatal("expected the signal to stop the loop before the deadline")
			}
			if result.Status != daemon.StatusStarted || result.PID != os.Getpid() {
				t.Fatalf("unexpected result %+v", result)
			}
			if beats.Load() < 1 {
				t.Fatal("expected at least one heartbeat")
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Fatalf("expected lock file removed, stat err=%v", err)
			}
		})
	}
}

func TestStartReleasesLockWhenHookPanics(t *testing.T) {
	path := pidPath(t)
	runner := daemon.NewRunner(path, daemon.WithHeartbeatHook(func(context.Context, int) {
		panic("heartbeat failed")
	}))

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_, _ = runner.Start(context.Background(), daemon.StartOptions{Heartbeat: 10 * time.Millisecond, MaxBeats: 3})
	}()
	if recovered != "heartbeat failed" {
		t.Fatalf("expected hook panic to propagate, got %v", recovered)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock file removed after panic, stat err=%v", err)
	}

	result, err := daemon.NewRunner(path).Start(context.Background(), daemon.StartOptions{MaxBeats: 0})
	if err != nil || result.Status != daemon.StatusStarted {
		t.Fatalf("expected lock to be reacquirable, got %+v err=%v", result, err)
	}
}

func TestConcurrentStartsYieldSingleDaemon(t *testing.T) {
	path := pidPath(t)
	const callers = 6

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		result daemon.Result
		err    error
	}
	outcomes := make(chan outcome, callers)
	for i := 0; i < callers; i++ {
		go func() {
			result, err := daemon.NewRunner(path).Start(ctx, daemon.StartOptions{
				Heartbeat: 10 * time.Millisecond,
				MaxBeats:  daemon.UnlimitedBeats,
			})
			outcomes <- outcome{result: result, err: err}
		}()
	}

	// The winner only returns after cancel, so the first callers-1 results are the losers.
	counts := map[daemon.Status]int{}
	for i := 0; i < callers; i++ {
		if i == callers-1 {
			cancel()
		}
		select {
		case got := <-outcomes:
			if got.err != nil {
				t.Fatalf("Start returned error: %v", got.err)
			}
			counts[got.result.Status]++
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for start %d", i)
		}
	}
	if counts[daemon.StatusStarted] != 1 || counts[daemon.StatusAlreadyRunning] != callers-1 {
		t.Fatalf("expected one started and %d already_running, got %v", callers-1, counts)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock file removed, stat err=%v", err)
	}
}
