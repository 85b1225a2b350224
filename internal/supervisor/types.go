package supervisor

import (
	"time"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/camera"
)

// ConnectionEvent reports a camera connectivity transition.
type ConnectionEvent struct {
	At        time.Time `json:"at"`
	Connected bool      `json:"connected"`
}

// FrameProcessor consumes the frames and stills the supervisor pulls
// off the source. capture.Controller is the production implementation.
type FrameProcessor interface {
	// ProcessFrame analyzes one preview frame.
	ProcessFrame(frame camera.Frame) error

	// PollStill collects a finished still capture, if one is pending.
	PollStill() (string, error)

	// Pause suspends analysis while the camera is known bad; Resume
	// restarts it once frames are trustworthy again.
	Pause(reason string)
	Resume()
}

// Config holds the loop cadences and recovery thresholds.
type Config struct {
	// ConnectedInterval is the poll cadence while frames are flowing.
	ConnectedInterval time.Duration
	// StarvedInterval is the cadence when connected but frameless.
	StarvedInterval time.Duration
	// DisconnectedInterval is the cadence while the camera is gone.
	DisconnectedInterval time.Duration
	// RetryInterval is the minimum gap between reconnect attempts.
	RetryInterval time.Duration
	// FreezeTimeout is how long a connected camera may stay frameless
	// before a reconnect is forced.
	FreezeTimeout time.Duration
	// HeartbeatInterval spaces the liveness log line.
	HeartbeatInterval time.Duration
	// StallThreshold is the consecutive empty-poll count that logs a
	// stall warning.
	StallThreshold int
}

// DefaultConfig returns the production cadences: 30fps-equivalent
// polling, 5s reconnect spacing, 15s freeze window.
func DefaultConfig() Config {
	return Config{
		ConnectedInterval:    33 * time.Millisecond,
		StarvedInterval:      200 * time.Millisecond,
		DisconnectedInterval: time.Second,
		RetryInterval:        5 * time.Second,
		FreezeTimeout:        15 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		StallThreshold:       5,
	}
}

// Stats is a point-in-time snapshot of supervisor counters.
type Stats struct {
	Running         bool
	Connected       bool
	FramesForwarded uint64
	Stalls          uint64
	Freezes         uint64
	Outages         uint64
	Reconnects      uint64
	ConnectFailures uint64
}
