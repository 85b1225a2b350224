// Package capture turns frames into decisions: it runs motion
// detection over the configured region, debounces capture triggers,
// and publishes motion and capture events.
package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/camera"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/events"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/motion"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/roi"
)

// Config tunes the controller.
type Config struct {
	// Threshold is the per-pixel difference level for the detector.
	Threshold int
	// MinArea is the smallest contour, in pixels, that counts as motion.
	MinArea int
	// Debounce is the minimum gap between triggered captures.
	Debounce time.Duration

	// Region restricts analysis when RegionEnabled is set. Coordinates
	// are expressed against RefWidth x RefHeight and fitted to the
	// actual frame size.
	Region        roi.Region
	RegionEnabled bool
	RefWidth      int
	RefHeight     int
}

// Stats is a point-in-time snapshot of controller counters.
type Stats struct {
	FramesAnalyzed     uint64
	Detections         uint64
	CapturesTriggered  uint64
	CapturesSuppressed uint64
	StillsSaved        uint64
	Paused             bool
}

// Controller owns the motion pipeline between the camera and the event
// buses. ProcessFrame and PollStill are driven from the supervisor's
// poll loop; Pause, Resume, and the setting updates may be called from
// other goroutines.
type Controller struct {
	src      camera.Source
	detector *motion.Detector
	motions  *events.Bus[MotionEvent]
	captures *events.Bus[CaptureEvent]

	debounce time.Duration
	now      func() time.Time

	mu            sync.Mutex
	region        roi.Region
	regionEnabled bool
	refW, refH    int
	fitted        roi.Region
	fittedOK      bool
	fittedW       int
	fittedH       int
	idleLogged    bool
	paused        bool
	pauseReason   string
	lastCapture   time.Time
	pendingTrace  string

	analyzed   atomic.Uint64
	detections atomic.Uint64
	triggered  atomic.Uint64
	suppressed atomic.Uint64
	stills     atomic.Uint64
}

// NewController validates the configuration and wires the detector to
// the given source and buses.
func NewController(cfg Config, src camera.Source, motions *events.Bus[MotionEvent], captures *events.Bus[CaptureEvent]) (*Controller, error) {
	if src == nil {
		return nil, fmt.Errorf("capture: source is required")
	}
	if motions == nil || captures == nil {
		return nil, fmt.Errorf("capture: event buses are required")
	}
	if cfg.Debounce < 0 {
		return nil, fmt.Errorf("capture: negative debounce %v", cfg.Debounce)
	}
	if cfg.RegionEnabled && !cfg.Region.Valid() {
		return nil, fmt.Errorf("capture: invalid analysis region %+v", cfg.Region)
	}
	if cfg.RegionEnabled && (cfg.RefWidth <= 0 || cfg.RefHeight <= 0) {
		return nil, fmt.Errorf("capture: invalid region reference size %dx%d", cfg.RefWidth, cfg.RefHeight)
	}

	detector, err := motion.NewDetector(cfg.Threshold, cfg.MinArea)
	if err != nil {
		return nil, err
	}

	return &Controller{
		src:           src,
		detector:      detector,
		motions:       motions,
		captures:      captures,
		debounce:      cfg.Debounce,
		now:           time.Now,
		region:        cfg.Region,
		regionEnabled: cfg.RegionEnabled,
		refW:          cfg.RefWidth,
		refH:          cfg.RefHeight,
	}, nil
}

// ProcessFrame analyzes one preview frame. Motion publishes a
// MotionEvent; outside the debounce window it also arms a still
// capture on the source. Without an analysis region the frame is
// skipped and the detector stays untouched.
func (c *Controller) ProcessFrame(frame camera.Frame) error {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return nil
	}
	region, ok := c.analysisRegionLocked(frame.Width, frame.Height)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	gray, err := motion.GrayRegion(frame.Data, frame.Width, frame.Height, region)
	if err != nil {
		return fmt.Errorf("capture: frame %d: %w", frame.Seq, err)
	}
	c.analyzed.Add(1)

	result := c.detector.Detect(gray)
	if len(result.Contours) == 0 {
		return nil
	}
	c.detections.Add(1)

	now := c.now()
	c.mu.Lock()
	suppress := now.Sub(c.lastCapture) < c.debounce
	c.mu.Unlock()

	captured := false
	if suppress {
		c.suppressed.Add(1)
	} else if err := c.src.CaptureStill(); err != nil {
		slog.Error("capture: still trigger failed", "error", err, "trace_id", frame.TraceID)
	} else {
		captured = true
		c.triggered.Add(1)
		c.mu.Lock()
		c.lastCapture = now
		c.pendingTrace = frame.TraceID
		c.mu.Unlock()
	}

	contours := make([]ContourInfo, len(result.Contours))
	largest := 0
	for i, ct := range result.Contours {
		abs := ct.Rect.Add(image.Pt(region.X1, region.Y1))
		contours[i] = ContourInfo{
			X:      abs.Min.X,
			Y:      abs.Min.Y,
			Width:  abs.Dx(),
			Height: abs.Dy(),
			Area:   ct.Area,
		}
		if ct.Area > largest {
			largest = ct.Area
		}
	}

	evt := MotionEvent{
		At:          now,
		TraceID:     frame.TraceID,
		FrameSeq:    frame.Seq,
		Contours:    contours,
		LargestArea: largest,
		Captured:    captured,
	}
	if err := c.motions.Publish(evt); err != nil {
		slog.Debug("capture: motion event dropped", "error", err)
	}

	slog.Info("capture: motion detected",
		"contours", len(contours),
		"largest_area", largest,
		"captured", captured,
		"frame_seq", frame.Seq,
		"trace_id", frame.TraceID,
	)
	return nil
}

// analysisRegionLocked resolves the region to analyze for the given
// frame size, fitting the configured region on size changes. The
// second return is false when no usable region exists; the frame must
// then be skipped without touching the detector. Callers hold c.mu.
func (c *Controller) analysisRegionLocked(w, h int) (roi.Region, bool) {
	if !c.regionEnabled {
		// Frames arrive at full rate, so the idle state logs once per
		// episode instead of per frame.
		if !c.idleLogged {
			c.idleLogged = true
			slog.Info("capture: no analysis region set, motion detection idle")
		}
		return roi.Region{}, false
	}

	if c.fittedW != w || c.fittedH != h {
		c.fitted = c.region.FitTo(c.refW, c.refH, w, h)
		c.fittedOK = c.fitted.Valid()
		c.fittedW = w
		c.fittedH = h
		if c.fittedOK {
			slog.Info("capture: analysis region fitted",
				"region", fmt.Sprintf("%d,%d-%d,%d", c.fitted.X1, c.fitted.Y1, c.fitted.X2, c.fitted.Y2),
				"frame", fmt.Sprintf("%dx%d", w, h),
			)
		} else {
			slog.Warn("capture: region collapses at this frame size, motion detection idle",
				"frame", fmt.Sprintf("%dx%d", w, h))
		}
	}
	return c.fitted, c.fittedOK
}

// PollStill asks the source for a finished still and publishes the
// CaptureEvent when one landed on disk.
func (c *Controller) PollStill() (string, error) {
	path, err := c.src.PollStill()
	if err != nil || path == "" {
		return path, err
	}

	c.mu.Lock()
	trace := c.pendingTrace
	c.pendingTrace = ""
	c.mu.Unlock()
	c.stills.Add(1)

	evt := CaptureEvent{At: c.now(), TraceID: trace, Path: path}
	if err := c.captures.Publish(evt); err != nil {
		slog.Debug("capture: capture event dropped", "error", err)
	}
	slog.Info("capture: still captured", "path", path, "trace_id", trace)
	return path, nil
}

// Pause stops motion analysis. Frames are still polled upstream but
// not inspected, so no events fire while paused.
func (c *Controller) Pause(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.pauseReason = reason
	slog.Info("capture: motion detection paused", "reason", reason)
}

// Resume restarts motion analysis. The detector baseline is stale
// after any pause, so it is rebuilt from the next frame.
func (c *Controller) Resume() {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = false
	c.pauseReason = ""
	c.mu.Unlock()

	c.detector.Reset()
	slog.Info("capture: motion detection resumed")
}

// SetRegion replaces the analysis region at runtime. The region uses
// the same reference size the controller was built with. Disabling
// clears the region and idles motion detection until a new one is set.
func (c *Controller) SetRegion(r roi.Region, enabled bool) error {
	if enabled && !r.Valid() {
		return fmt.Errorf("capture: invalid analysis region %+v", r)
	}

	c.mu.Lock()
	c.region = r
	c.regionEnabled = enabled
	c.fittedW = 0
	c.fittedH = 0
	c.idleLogged = false
	c.mu.Unlock()

	c.detector.Reset()
	slog.Info("capture: analysis region updated",
		"enabled", enabled,
		"region", fmt.Sprintf("%d,%d-%d,%d", r.X1, r.Y1, r.X2, r.Y2),
	)
	return nil
}

// SetThreshold adjusts the detector threshold at runtime.
func (c *Controller) SetThreshold(threshold int) error {
	return c.detector.SetThreshold(threshold)
}

// SetMinArea adjusts the minimum contour area at runtime.
func (c *Controller) SetMinArea(minArea int) error {
	return c.detector.SetMinArea(minArea)
}

// Stats returns a snapshot of controller counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()

	return Stats{
		FramesAnalyzed:     c.analyzed.Load(),
		Detections:         c.detections.Load(),
		CapturesTriggered:  c.triggered.Load(),
		CapturesSuppressed: c.suppressed.Load(),
		StillsSaved:        c.stills.Load(),
		Paused:             paused,
	}
}
