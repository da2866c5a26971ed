package daemon

import "time"

// Status names a lifecycle outcome.
type Status string

const (
	StatusStarted         Status = "started"
	StatusAlreadyRunning  Status = "already_running"
	StatusStopped         Status = "stopped"
	StatusStopRequested   Status = "stop_requested"
	StatusNotRunning      Status = "not_running"
	StatusRestartComplete Status = "restart_complete"
)

// Result is the outcome of a lifecycle operation. PID is zero when unknown.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	PID     int    `json:"pid,omitempty"`
}

// UnlimitedBeats runs the heartbeat loop until a signal or cancellation.
const UnlimitedBeats = -1

// StartOptions configures the heartbeat loop.
type StartOptions struct {
	Heartbeat time.Duration
	MaxBeats  int
}

const (
	minHeartbeat        = 10 * time.Millisecond
	DefaultStopTimeout  = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

func (o StartOptions) interval() time.Duration {
	if o.Heartbeat < minHeartbeat {
		return minHeartbeat
	}
	return o.Heartbeat
}
