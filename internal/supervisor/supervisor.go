// Package supervisor owns the frame-acquisition loop. It polls the
// camera on an adaptive cadence, feeds frames to the capture
// controller, and keeps the device alive across USB drops and silent
// freezes without ever giving up.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/camera"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/events"
)

// Supervisor drives one camera source from a single goroutine. All
// loop state lives on that goroutine; Stats exposes counters through
// atomics only.
type Supervisor struct {
	cfg    Config
	src    camera.Source
	proc   FrameProcessor
	frames *events.Bus[camera.Frame]
	conns  *events.Bus[ConnectionEvent]

	now func() time.Time

	started atomic.Bool
	running atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	done    chan struct{}

	// Loop state. Touched only from Run's goroutine.
	runCtx        context.Context
	wasConnected  bool
	lastFrame     time.Time
	lastAttempt   time.Time
	lastHeartbeat time.Time
	failures      int

	forwarded   atomic.Uint64
	stalls      atomic.Uint64
	freezes     atomic.Uint64
	outages     atomic.Uint64
	reconnects  atomic.Uint64
	connectErrs atomic.Uint64
}

// New validates the configuration and prepares a supervisor. Run
// starts the loop.
func New(cfg Config, src camera.Source, proc FrameProcessor, frames *events.Bus[camera.Frame], conns *events.Bus[ConnectionEvent]) (*Supervisor, error) {
	if src == nil {
		return nil, fmt.Errorf("supervisor: source is required")
	}
	if proc == nil {
		return nil, fmt.Errorf("supervisor: frame processor is required")
	}
	if frames == nil || conns == nil {
		return nil, fmt.Errorf("supervisor: event buses are required")
	}
	if cfg.ConnectedInterval <= 0 || cfg.StarvedInterval <= 0 || cfg.DisconnectedInterval <= 0 {
		return nil, fmt.Errorf("supervisor: poll intervals must be positive")
	}
	if cfg.RetryInterval <= 0 {
		return nil, fmt.Errorf("supervisor: retry interval must be positive")
	}
	if cfg.FreezeTimeout <= 0 {
		return nil, fmt.Errorf("supervisor: freeze timeout must be positive")
	}
	if cfg.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("supervisor: heartbeat interval must be positive")
	}
	if cfg.StallThreshold < 1 {
		return nil, fmt.Errorf("supervisor: stall threshold must be >= 1")
	}

	return &Supervisor{
		cfg:    cfg,
		src:    src,
		proc:   proc,
		frames: frames,
		conns:  conns,
		now:    time.Now,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		runCtx: context.Background(),
	}, nil
}

// Run blocks until the context is canceled or Stop is called, then
// disconnects the source on the way out. A supervisor runs at most
// once.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.stopped.Load() {
		return fmt.Errorf("supervisor: already stopped")
	}
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("supervisor: already started")
	}
	// Stop can land between the stopped check and the swap above.
	// Once started is set, done must close on every path or a
	// waiting Stop would block.
	if s.stopped.Load() {
		close(s.done)
		return fmt.Errorf("supervisor: already stopped")
	}
	s.running.Store(true)
	defer close(s.done)
	defer s.running.Store(false)

	now := s.now()
	s.runCtx = ctx
	s.wasConnected = true
	s.lastFrame = now
	s.lastHeartbeat = now

	slog.Info("supervisor: starting",
		"poll_interval", s.cfg.ConnectedInterval.String(),
		"retry_interval", s.cfg.RetryInterval.String(),
		"freeze_timeout", s.cfg.FreezeTimeout.String(),
	)

	for {
		delay := s.iterate(s.now())

		select {
		case <-ctx.Done():
			s.release("context canceled")
			return ctx.Err()
		case <-s.stopCh:
			s.release("stop requested")
			return nil
		case <-time.After(delay):
		}
	}
}

// Stop asks the loop to exit and waits for it. Safe to call more than
// once and before Run.
func (s *Supervisor) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	if s.started.Load() {
		<-s.done
	}
}

// release disconnects the source when the loop exits, so a device
// handle never outlives its owner.
func (s *Supervisor) release(reason string) {
	if err := s.src.Disconnect(); err != nil {
		slog.Warn("supervisor: disconnect on exit", "error", err)
	}
	slog.Info("supervisor: stopped",
		"reason", reason,
		"frames", s.forwarded.Load(),
		"outages", s.outages.Load(),
		"freezes", s.freezes.Load(),
	)
}

// iterate runs one pass of the acquisition loop and returns how long
// to sleep before the next one.
func (s *Supervisor) iterate(now time.Time) time.Duration {
	if now.Sub(s.lastHeartbeat) >= s.cfg.HeartbeatInterval {
		s.lastHeartbeat = now
		slog.Info("supervisor: heartbeat",
			"connected", s.src.IsConnected(),
			"last_frame_ago", now.Sub(s.lastFrame).Round(100*time.Millisecond).String(),
			"frames", s.forwarded.Load(),
			"connect_failures", s.connectErrs.Load(),
		)
	}

	// A connected camera that has gone silent past the freeze window
	// only recovers through a forced reconnect. This path emits no
	// lost event; the latch is cleared before the disconnected branch
	// can see the transition.
	if s.src.IsConnected() && now.Sub(s.lastFrame) > s.cfg.FreezeTimeout {
		slog.Error("supervisor: no frames within freeze window, forcing reconnect",
			"last_frame_ago", now.Sub(s.lastFrame).Round(100*time.Millisecond).String(),
			"freeze_timeout", s.cfg.FreezeTimeout.String(),
		)
		if err := s.src.Disconnect(); err != nil {
			slog.Warn("supervisor: freeze disconnect", "error", err)
		}
		s.proc.Pause("camera frozen")
		s.wasConnected = false
		s.failures = 0
		s.freezes.Add(1)
		return 0
	}

	if !s.src.IsConnected() {
		return s.whileDisconnected(now)
	}
	return s.whileConnected(now)
}

// whileDisconnected announces a fresh outage once, then paces
// reconnect attempts by the retry interval.
func (s *Supervisor) whileDisconnected(now time.Time) time.Duration {
	if s.wasConnected {
		slog.Warn("supervisor: camera disconnected, reconnecting")
		s.wasConnected = false
		s.outages.Add(1)
		s.proc.Pause("camera offline")
		s.publishConnection(now, false)
	}

	if now.Sub(s.lastAttempt) >= s.cfg.RetryInterval {
		s.lastAttempt = now
		if err := s.src.Connect(s.runCtx); err != nil {
			s.connectErrs.Add(1)
			slog.Warn("supervisor: reconnect failed",
				"error", err,
				"retry_in", s.cfg.RetryInterval.String(),
			)
		} else {
			slog.Info("supervisor: camera reconnected")
			s.wasConnected = true
			s.lastFrame = now
			s.failures = 0
			s.reconnects.Add(1)
			s.proc.Resume()
			s.publishConnection(now, true)
		}
	}

	return s.cfg.DisconnectedInterval
}

// whileConnected polls one frame and one finished still, tracking
// stall streaks when the source comes up empty.
func (s *Supervisor) whileConnected(now time.Time) time.Duration {
	frame, ok := s.src.PollFrame()
	if !ok {
		s.failures++
		if s.failures == s.cfg.StallThreshold {
			s.stalls.Add(1)
			slog.Warn("supervisor: consecutive empty polls, possible camera stall",
				"failures", s.failures,
			)
		}
		s.pollStill()
		return s.cfg.StarvedInterval
	}

	s.lastFrame = now
	s.failures = 0
	s.forwarded.Add(1)

	if err := s.frames.Publish(frame); err != nil {
		slog.Debug("supervisor: frame fan-out dropped", "error", err)
	}
	if err := s.proc.ProcessFrame(frame); err != nil {
		slog.Warn("supervisor: frame processing failed",
			"error", err,
			"frame_seq", frame.Seq,
		)
	}
	s.pollStill()
	return s.cfg.ConnectedInterval
}

func (s *Supervisor) pollStill() {
	if _, err := s.proc.PollStill(); err != nil {
		slog.Warn("supervisor: still collection failed", "error", err)
	}
}

func (s *Supervisor) publishConnection(at time.Time, connected bool) {
	evt := ConnectionEvent{At: at, Connected: connected}
	if err := s.conns.Publish(evt); err != nil {
		slog.Debug("supervisor: connection event dropped", "error", err)
	}
}

// Stats returns a snapshot of supervisor counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		Running:         s.running.Load(),
		Connected:       s.src.IsConnected(),
		FramesForwarded: s.forwarded.Load(),
		Stalls:          s.stalls.Load(),
		Freezes:         s.freezes.Load(),
		Outages:         s.outages.Load(),
		Reconnects:      s.reconnects.Load(),
		ConnectFailures: s.connectErrs.Load(),
	}
}
