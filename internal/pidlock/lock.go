package pidlock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

const maxAcquireAttempts = 8

// removeStale deletes a lock file left by a dead holder.
var removeStale = os.Remove

var (
	// ErrLockHeld matches any *HeldError.
	ErrLockHeld = errors.New("pid lock held by running process")
	// ErrLockRace reports that acquisition kept losing to concurrent writers.
	ErrLockRace = errors.New("pid lock acquisition raced repeatedly")
)

// HeldError names the live process holding the lock.
type HeldError struct {
	Path string
	PID  int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("pid lock %s held by pid %d", e.Path, e.PID)
}

func (e *HeldError) Is(target error) bool { return target == ErrLockHeld }

// Probe reports whether a pid belongs to a running process.
type Probe func(pid int) bool

// Option customizes a Lock.
type Option func(*Lock)

// WithProbe replaces the liveness probe.
func WithProbe(probe Probe) Option {
	return func(l *Lock) {
		if probe != nil {
			l.probe = probe
		}
	}
}

// WithPID overrides the pid written into the lock file.
func WithPID(pid int) Option {
	return func(l *Lock) {
		if pid > 0 {
			l.pid = pid
		}
	}
}

// Lock is a pid file lock. A Lock is not reentrant.
type Lock struct {
	path  string
	pid   int
	probe Probe

	mu   sync.Mutex
	held bool
}

// New returns a lock for path owned by the current process.
func New(path string, opts ...Option) *Lock {
	l := &Lock{
		path:  path,
		pid:   os.Getpid(),
		probe: ProcessRunning,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// PID returns the pid this lock writes.
func (l *Lock) PID() int { return l.pid }

// Held reports whether this instance currently owns the lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Acquire claims the lock file. It returns a *HeldError when a live process
// owns it and ErrLockRace when the attempt budget runs out.
func (l *Lock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil
	}
	if strings.TrimSpace(l.path) == "" {
		return errors.New("pid lock path is required")
	}
	guard, err := lockGuard(l.path)
	if err != nil {
		return err
	}
	defer func() { _ = guard.Unlock() }()

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		created, err := l.tryCreate()
		if err != nil {
			return err
		}
		if created {
			l.held = true
			return nil
		}

		pid, ok, err := ReadPID(l.path)
		if err != nil {
			return err
		}
		if ok && l.probe(pid) {
			return &HeldError{Path: l.path, PID: pid}
		}
		if err := removeStale(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale pid lock: %w", err)
		}
	}
	return ErrLockRace
}

func (l *Lock) tryCreate() (bool, error) {
	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create pid lock: %w", err)
	}
	_, writeErr := file.WriteString(strconv.Itoa(l.pid))
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(l.path)
		return false, fmt.Errorf("write pid lock: %w", err)
	}
	return true, nil
}

// Release removes the lock file when this instance holds it and the file still
// names this process.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	_, err := RemoveIfPID(l.path, l.pid)
	return err
}

// ReadPID parses the lock file. ok is false when the file is missing, empty, or
// not a positive decimal integer.
func ReadPID(path string) (int, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read pid lock %s: %w", path, err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return 0, false, nil
	}
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, false, nil
	}
	return pid, true, nil
}

// RemoveIfPID deletes path only if it still names pid. It reports whether the
// file was removed.
func RemoveIfPID(path string, pid int) (bool, error) {
	guard, err := lockGuard(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = guard.Unlock() }()

	current, ok, err := ReadPID(path)
	if err != nil {
		return false, err
	}
	if !ok || current != pid {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove pid lock: %w", err)
	}
	return true, nil
}

// ProcessRunning probes pid with signal 0. EPERM counts as running.
func ProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return !errors.Is(err, unix.ESRCH)
}

func lockGuard(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	guard := flock.New(path + ".guard")
	if err := guard.Lock(); err != nil {
		return nil, fmt.Errorf("acquire pid lock guard: %w", err)
	}
	return guard, nil
}
