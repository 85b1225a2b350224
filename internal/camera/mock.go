package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/events"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/storage"
)

// MockSource generates synthetic frames: a bright block drifting over a
// dark background, enough to trip motion detection in demos and tests.
// It honors the full Source contract including stills and controls.
type MockSource struct {
	width   int
	height  int
	fps     int
	saveDir string
	quality int

	running atomic.Bool
	armed   atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	frames  *events.Latest[Frame]
	limiter *RateLimiter

	mu        sync.Mutex
	seq       uint64
	lastFrame Frame
	controls  map[string]int

	produced   atomic.Uint64
	stills     atomic.Uint64
	reconnects atomic.Uint64
	connects   atomic.Uint64
}

var _ Source = (*MockSource)(nil)

// NewMockSource creates a synthetic source. Stills are written under
// saveDir at JPEG quality 90.
func NewMockSource(width, height, fps int, saveDir string) (*MockSource, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("camera: invalid mock dimensions %dx%d", width, height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("camera: invalid mock fps %d", fps)
	}
	return &MockSource{
		width:    width,
		height:   height,
		fps:      fps,
		saveDir:  saveDir,
		quality:  90,
		frames:   events.NewLatest[Frame](),
		limiter:  NewRateLimiter(DefaultControlInterval),
		controls: make(map[string]int),
	}, nil
}

// Connect starts the frame generator.
func (m *MockSource) Connect(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if m.connects.Add(1) > 1 {
		m.reconnects.Add(1)
	}

	m.mu.Lock()
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.generate(ctx, stopCh)

	slog.Info("camera: mock source connected",
		"width", m.width, "height", m.height, "fps", m.fps)
	return nil
}

// IsConnected reports whether the generator is running.
func (m *MockSource) IsConnected() bool {
	return m.running.Load()
}

// PollFrame returns the newest unseen frame.
func (m *MockSource) PollFrame() (Frame, bool) {
	return m.frames.TryTake()
}

// CaptureStill arms a still capture; the next generated frame is saved.
func (m *MockSource) CaptureStill() error {
	if !m.running.Load() {
		return ErrNotConnected
	}
	m.armed.Store(true)
	return nil
}

// PollStill saves the pending still, if armed, and returns its path.
func (m *MockSource) PollStill() (string, error) {
	if !m.armed.CompareAndSwap(true, false) {
		return "", nil
	}

	m.mu.Lock()
	frame := m.lastFrame
	m.mu.Unlock()
	if frame.Data == nil {
		// Armed before the first frame; re-arm and wait.
		m.armed.Store(true)
		return "", nil
	}

	img, err := storage.RGBToImage(frame.Data, frame.Width, frame.Height)
	if err != nil {
		return "", fmt.Errorf("camera: mock still conversion: %w", err)
	}
	path := storage.StillPath(m.saveDir, frame.Timestamp)
	if err := storage.SaveJPEG(path, img, m.quality); err != nil {
		return "", fmt.Errorf("camera: mock still save: %w", err)
	}

	m.stills.Add(1)
	slog.Info("camera: mock still saved", "path", path, "trace_id", frame.TraceID)
	return path, nil
}

// ApplyControl records a control value after rate limiting.
func (m *MockSource) ApplyControl(name string, value int) error {
	switch name {
	case ControlFocus, ControlWhiteBalance, ControlISO, ControlExposure:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownControl, name)
	}
	if !m.limiter.Allow(name) {
		return ErrRateLimited
	}

	m.mu.Lock()
	m.controls[name] = value
	m.mu.Unlock()

	slog.Debug("camera: mock control applied", "control", name, "value", value)
	return nil
}

// Control returns the last applied value for a control, for tests.
func (m *MockSource) Control(name string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.controls[name]
	return v, ok
}

// Disconnect stops the generator. Safe to call repeatedly.
func (m *MockSource) Disconnect() error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}

	m.mu.Lock()
	stopCh := m.stopCh
	m.mu.Unlock()
	close(stopCh)
	m.wg.Wait()

	slog.Info("camera: mock source disconnected",
		"frames_produced", m.produced.Load())
	return nil
}

// Stats returns a snapshot of source counters.
func (m *MockSource) Stats() Stats {
	return Stats{
		FramesProduced: m.produced.Load(),
		FramesDropped:  m.frames.Drops(),
		StillsCaptured: m.stills.Load(),
		Reconnects:     m.reconnects.Load(),
		Connected:      m.running.Load(),
	}
}

// generate emits frames at the target rate until stopped.
func (m *MockSource) generate(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(m.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			frame := m.createFrame()

			m.mu.Lock()
			m.lastFrame = frame
			m.mu.Unlock()

			if err := m.frames.Set(frame); err != nil {
				return
			}
			m.produced.Add(1)
		}
	}
}

// createFrame paints the drifting block onto a dark background.
func (m *MockSource) createFrame() Frame {
	m.mu.Lock()
	seq := m.seq
	m.seq++
	m.mu.Unlock()

	data := make([]byte, m.width*m.height*3)
	for i := range data {
		data[i] = 20
	}

	// Block position advances with the sequence number so consecutive
	// frames differ.
	const block = 40
	span := m.width - block
	if span < 1 {
		span = 1
	}
	bx := int(seq*8) % span
	by := m.height / 3
	for y := by; y < by+block && y < m.height; y++ {
		for x := bx; x < bx+block && x < m.width; x++ {
			off := (y*m.width + x) * 3
			data[off] = 230
			data[off+1] = 230
			data[off+2] = 230
		}
	}

	return Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     m.width,
		Height:    m.height,
		Data:      data,
		TraceID:   uuid.New().String(),
	}
}
