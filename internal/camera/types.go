// Package camera defines the frame source contract the daemon programs
// against, along with the shared Frame type, a per-control rate
// limiter, and a synthetic source for development and tests.
package camera

import (
	"context"
	"errors"
	"time"
)

// Control names accepted by ApplyControl.
const (
	ControlFocus        = "focus"
	ControlWhiteBalance = "white_balance"
	ControlISO          = "iso"
	ControlExposure     = "exposure"
)

// DefaultControlInterval is the minimum gap between applied changes to
// the same control.
const DefaultControlInterval = 100 * time.Millisecond

// Errors returned by Source implementations.
var (
	ErrNotConnected   = errors.New("camera: not connected")
	ErrAlreadyRunning = errors.New("camera: already connected")
	ErrUnknownControl = errors.New("camera: unknown control")
	ErrRateLimited    = errors.New("camera: control change rate limited")
)

// Frame is one preview frame in packed RGB.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the source.
	Seq uint64
	// Timestamp is when the frame left the camera.
	Timestamp time.Time
	// Width in pixels.
	Width int
	// Height in pixels.
	Height int
	// Data holds Width*Height*3 bytes of packed RGB.
	Data []byte
	// TraceID identifies the frame across buses and logs.
	TraceID string
}

// Stats is a point-in-time snapshot of source counters.
type Stats struct {
	FramesProduced uint64
	FramesDropped  uint64
	StillsCaptured uint64
	Reconnects     uint64
	Connected      bool
}

// Source is a camera the supervisor can drive. Implementations must be
// safe for concurrent use: the supervisor polls from one goroutine
// while control changes can arrive from another.
type Source interface {
	// Connect opens the device and starts frame production. Control
	// settings are applied on every connect, so a reconnect restores
	// them.
	Connect(ctx context.Context) error

	// IsConnected reports whether the source is producing frames.
	IsConnected() bool

	// PollFrame returns the newest unseen preview frame. Non-blocking;
	// the same frame is never returned twice.
	PollFrame() (Frame, bool)

	// CaptureStill arms a full-quality still capture. The result
	// arrives via PollStill.
	CaptureStill() error

	// PollStill saves a finished still, if one is pending, and returns
	// its path. An empty path means nothing is pending.
	PollStill() (string, error)

	// ApplyControl adjusts one camera control. At most one change per
	// control is applied per rate-limit window; excess changes are
	// dropped with ErrRateLimited, never queued.
	ApplyControl(name string, value int) error

	// Disconnect stops frame production. Safe to call repeatedly.
	Disconnect() error

	// Stats returns a snapshot of source counters.
	Stats() Stats
}
