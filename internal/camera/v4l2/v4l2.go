// Package v4l2 implements the camera source on top of a GStreamer
// v4l2src pipeline. A tee splits the device stream into a low-rate RGB
// preview branch for motion detection and an on-demand JPEG still
// branch for full-quality captures.
package v4l2

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/camera"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/events"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/storage"
)

// Config holds everything needed to open a device and shape its two
// output branches.
type Config struct {
	// Device is the v4l2 device path, for example /dev/video0.
	Device string
	// Width and Height shape the preview branch.
	Width  int
	Height int
	// FPS caps the preview frame rate.
	FPS int
	// Rotate180 flips the image for upside-down mounts.
	Rotate180 bool
	// StillQuality is the JPEG encoder quality for stills, 1 to 100.
	StillQuality int
	// SaveDir receives captured stills.
	SaveDir string

	// Initial control values. Zero means leave the driver default.
	Focus        int
	WhiteBalance int
	ISOMax       int
	ExposureMS   int
}

// stillShot is an encoded still waiting to be persisted.
type stillShot struct {
	data []byte
	at   time.Time
}

// Source drives one v4l2 device. Frames land in a latest-wins mailbox
// so a slow consumer observes the newest frame instead of a backlog.
type Source struct {
	cfg Config

	frames *events.Latest[camera.Frame]
	stills *events.Latest[stillShot]

	limiter *camera.RateLimiter

	running atomic.Bool
	armed   atomic.Bool

	seq         atomic.Uint64
	produced    atomic.Uint64
	stillsSaved atomic.Uint64
	connects    atomic.Uint64
	reconnects  atomic.Uint64

	mu            sync.Mutex
	controls      map[string]int
	pipeline      *pipelineElements
	cancelMonitor context.CancelFunc

	wg sync.WaitGroup
}

var _ camera.Source = (*Source)(nil)

// New validates the configuration and prepares a disconnected source.
// GStreamer is not touched until Connect.
func New(cfg Config) (*Source, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("v4l2: device path is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("v4l2: invalid preview size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("v4l2: invalid frame rate %d", cfg.FPS)
	}
	if cfg.StillQuality < 1 || cfg.StillQuality > 100 {
		return nil, fmt.Errorf("v4l2: still quality %d out of range 1-100", cfg.StillQuality)
	}
	if cfg.SaveDir == "" {
		return nil, fmt.Errorf("v4l2: save directory is required")
	}

	s := &Source{
		cfg:      cfg,
		frames:   events.NewLatest[camera.Frame](),
		stills:   events.NewLatest[stillShot](),
		limiter:  camera.NewRateLimiter(camera.DefaultControlInterval),
		controls: make(map[string]int),
	}
	if cfg.Focus > 0 {
		s.controls[camera.ControlFocus] = cfg.Focus
	}
	if cfg.WhiteBalance > 0 {
		s.controls[camera.ControlWhiteBalance] = cfg.WhiteBalance
	}
	if cfg.ISOMax > 0 {
		s.controls[camera.ControlISO] = cfg.ISOMax
	}
	if cfg.ExposureMS > 0 {
		s.controls[camera.ControlExposure] = cfg.ExposureMS
	}
	return s, nil
}

// Connect builds the pipeline, applies the accumulated controls, and
// starts streaming. A bus monitor goroutine watches for fatal errors
// and flips the source to disconnected when the device goes away.
func (s *Source) Connect(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return camera.ErrAlreadyRunning
	}

	// Sweep remnants of a session the bus monitor declared dead.
	s.teardown()

	s.mu.Lock()
	controls := make(map[string]int, len(s.controls))
	for name, value := range s.controls {
		controls[name] = value
	}
	s.mu.Unlock()

	elems, err := buildPipeline(s.cfg, controls)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("v4l2: %w", err)
	}

	elems.previewSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onPreviewSample,
	})
	elems.stillSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onStillSample,
	})

	if err := elems.pipeline.SetState(gst.StatePlaying); err != nil {
		if derr := destroyPipeline(elems); derr != nil {
			slog.Warn("v4l2: pipeline teardown", "error", derr)
		}
		s.running.Store(false)
		return fmt.Errorf("v4l2: failed to start pipeline: %w", err)
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.pipeline = elems
	s.cancelMonitor = cancel
	s.mu.Unlock()

	if s.connects.Add(1) > 1 {
		s.reconnects.Add(1)
	}

	s.wg.Add(1)
	go s.monitor(monitorCtx, elems, time.Now())

	slog.Info("v4l2: connected",
		"device", s.cfg.Device,
		"size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"fps", s.cfg.FPS,
		"controls", len(controls),
	)
	return nil
}

// IsConnected reports whether the pipeline is live. The bus monitor
// clears this on fatal errors before the caller ever polls.
func (s *Source) IsConnected() bool {
	return s.running.Load()
}

// PollFrame returns the newest unseen preview frame without blocking.
func (s *Source) PollFrame() (camera.Frame, bool) {
	return s.frames.TryTake()
}

// CaptureStill arms the still branch. The next sample through it is
// kept and saved on the following PollStill.
func (s *Source) CaptureStill() error {
	if !s.running.Load() {
		return camera.ErrNotConnected
	}
	s.armed.Store(true)
	return nil
}

// PollStill persists a pending still, if any, and returns its path.
func (s *Source) PollStill() (string, error) {
	shot, ok := s.stills.TryTake()
	if !ok {
		return "", nil
	}

	path := storage.StillPath(s.cfg.SaveDir, shot.at)
	if err := storage.SaveJPEGBytes(path, shot.data); err != nil {
		return "", fmt.Errorf("v4l2: %w", err)
	}
	s.stillsSaved.Add(1)
	slog.Info("v4l2: still saved", "path", path, "size_bytes", len(shot.data))
	return path, nil
}

// ApplyControl records a control change and, when connected, pushes the
// updated control set to the live source element.
func (s *Source) ApplyControl(name string, value int) error {
	if _, err := controlFields(name, value); err != nil {
		return err
	}
	if !s.limiter.Allow(name) {
		slog.Debug("v4l2: control change dropped", "control", name, "value", value)
		return camera.ErrRateLimited
	}

	s.mu.Lock()
	s.controls[name] = value
	controls := make(map[string]int, len(s.controls))
	for n, v := range s.controls {
		controls[n] = v
	}
	elems := s.pipeline
	s.mu.Unlock()

	if elems != nil {
		if st := controlsStructure(controls); st != nil {
			if err := elems.source.SetProperty("extra-controls", st); err != nil {
				return fmt.Errorf("v4l2: failed to apply %s: %w", name, err)
			}
		}
	}

	slog.Info("v4l2: control applied", "control", name, "value", value)
	return nil
}

// Disconnect stops the monitor and tears the pipeline down. Safe to
// call repeatedly and after a monitor-declared failure.
func (s *Source) Disconnect() error {
	s.running.Store(false)
	s.teardown()
	return nil
}

// teardown takes ownership of the current pipeline under the lock,
// stops the monitor, and releases GStreamer resources. A nil pipeline
// means nothing to do.
func (s *Source) teardown() {
	s.mu.Lock()
	elems := s.pipeline
	cancel := s.cancelMonitor
	s.pipeline = nil
	s.cancelMonitor = nil
	s.mu.Unlock()

	if elems == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if err := destroyPipeline(elems); err != nil {
		slog.Warn("v4l2: pipeline teardown", "error", err)
	}
	slog.Info("v4l2: disconnected",
		"device", s.cfg.Device,
		"frames", s.produced.Load(),
		"stills", s.stillsSaved.Load(),
	)
}

// Stats returns a snapshot of source counters.
func (s *Source) Stats() camera.Stats {
	return camera.Stats{
		FramesProduced: s.produced.Load(),
		FramesDropped:  s.frames.Drops(),
		StillsCaptured: s.stillsSaved.Load(),
		Reconnects:     s.reconnects.Load(),
		Connected:      s.running.Load(),
	}
}

// monitor watches the pipeline bus. Fatal conditions mark the source
// disconnected and leave teardown to the owner, so a poll loop sees
// IsConnected turn false and drives the reconnect.
func (s *Source) monitor(ctx context.Context, elems *pipelineElements, started time.Time) {
	defer s.wg.Done()

	bus := elems.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				slog.Error("v4l2: end of stream",
					"device", s.cfg.Device,
					"uptime", time.Since(started).Round(time.Second).String(),
					"frames", s.produced.Load(),
				)
				s.running.Store(false)
				return

			case gst.MessageError:
				gerr := msg.ParseError()
				category := ClassifyGStreamerError(gerr)
				slog.Error("v4l2: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"category", category.String(),
					"device", s.cfg.Device,
					"uptime", time.Since(started).Round(time.Second).String(),
					"frames", s.produced.Load(),
				)
				s.running.Store(false)
				return

			case gst.MessageStateChanged:
				if msg.Source() == elems.pipeline.GetName() {
					old, next := msg.ParseStateChanged()
					slog.Debug("v4l2: pipeline state changed",
						"from", old.String(),
						"to", next.String(),
					)
				}
			}
		}
	}
}
