package camera_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/camera"
)

// pollFrame polls until a frame arrives or the deadline passes.
func pollFrame(t *testing.T, src camera.Source, deadline time.Duration) (camera.Frame, bool) {
	t.Helper()
	stop := time.Now().Add(deadline)
	for time.Now().Before(stop) {
		if f, ok := src.PollFrame(); ok {
			return f, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return camera.Frame{}, false
}

// TestNewMockSource_FailFast tests constructor validation.
func TestNewMockSource_FailFast(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		fps           int
		wantErr       bool
	}{
		{name: "valid", width: 64, height: 48, fps: 30, wantErr: false},
		{name: "zero width", width: 0, height: 48, fps: 30, wantErr: true},
		{name: "zero fps", width: 64, height: 48, fps: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := camera.NewMockSource(tt.width, tt.height, tt.fps, t.TempDir())
			if tt.wantErr && err == nil {
				t.Error("NewMockSource() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("NewMockSource() unexpected error = %v", err)
			}
		})
	}
}

// TestMockSource_ProducesFrames tests the frame contract end to end.
func TestMockSource_ProducesFrames(t *testing.T) {
	src, err := camera.NewMockSource(64, 48, 100, t.TempDir())
	if err != nil {
		t.Fatalf("NewMockSource() unexpected error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := src.Connect(ctx); err != nil {
		t.Fatalf("Connect() unexpected error = %v", err)
	}
	defer src.Disconnect()

	if err := src.Connect(ctx); !errors.Is(err, camera.ErrAlreadyRunning) {
		t.Errorf("Connect() twice error = %v, want ErrAlreadyRunning", err)
	}
	if !src.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}

	f, ok := pollFrame(t, src, 2*time.Second)
	if !ok {
		t.Fatal("PollFrame() produced nothing within deadline")
	}
	if f.Width != 64 || f.Height != 48 {
		t.Errorf("frame dims = %dx%d, want 64x48", f.Width, f.Height)
	}
	if len(f.Data) != 64*48*3 {
		t.Errorf("frame data = %d bytes, want %d", len(f.Data), 64*48*3)
	}
	if f.TraceID == "" {
		t.Error("frame missing trace id")
	}

	// Consume-on-read: a taken frame never comes back.
	f2, ok := pollFrame(t, src, 2*time.Second)
	if !ok {
		t.Fatal("PollFrame() second frame missing")
	}
	if f2.Seq <= f.Seq {
		t.Errorf("second frame seq = %d, want > %d", f2.Seq, f.Seq)
	}

	stats := src.Stats()
	if stats.FramesProduced == 0 {
		t.Error("Stats() FramesProduced = 0 after polling frames")
	}
	if !stats.Connected {
		t.Error("Stats() Connected = false while running")
	}
}

// TestMockSource_StillCapture tests arm, save, and the filename
// contract.
func TestMockSource_StillCapture(t *testing.T) {
	dir := t.TempDir()
	src, err := camera.NewMockSource(64, 48, 100, dir)
	if err != nil {
		t.Fatalf("NewMockSource() unexpected error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := src.Connect(ctx); err != nil {
		t.Fatalf("Connect() unexpected error = %v", err)
	}
	defer src.Disconnect()

	// Wait for a frame so the still has content.
	if _, ok := pollFrame(t, src, 2*time.Second); !ok {
		t.Fatal("PollFrame() produced nothing within deadline")
	}

	if err := src.CaptureStill(); err != nil {
		t.Fatalf("CaptureStill() unexpected error = %v", err)
	}

	var path string
	stop := time.Now().Add(2 * time.Second)
	for time.Now().Before(stop) {
		p, err := src.PollStill()
		if err != nil {
			t.Fatalf("PollStill() unexpected error = %v", err)
		}
		if p != "" {
			path = p
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if path == "" {
		t.Fatal("PollStill() never produced a still")
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "motion_") || !strings.HasSuffix(base, ".jpeg") {
		t.Errorf("still filename = %q, want motion_<unix>.jpeg", base)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("still dir = %q, want %q", filepath.Dir(path), dir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Stat(%q) error = %v", path, err)
	}

	// Nothing further pending.
	if p, err := src.PollStill(); err != nil || p != "" {
		t.Errorf("PollStill() after drain = (%q, %v), want empty", p, err)
	}

	if got := src.Stats().StillsCaptured; got != 1 {
		t.Errorf("Stats() StillsCaptured = %d, want 1", got)
	}
}

// TestMockSource_CaptureStillRequiresConnection tests the disconnected
// error path.
func TestMockSource_CaptureStillRequiresConnection(t *testing.T) {
	src, err := camera.NewMockSource(64, 48, 30, t.TempDir())
	if err != nil {
		t.Fatalf("NewMockSource() unexpected error = %v", err)
	}
	if err := src.CaptureStill(); !errors.Is(err, camera.ErrNotConnected) {
		t.Errorf("CaptureStill() error = %v, want ErrNotConnected", err)
	}
}

// TestMockSource_DisconnectIdempotent tests repeat disconnects and
// reconnect counting.
func TestMockSource_DisconnectIdempotent(t *testing.T) {
	src, err := camera.NewMockSource(64, 48, 100, t.TempDir())
	if err != nil {
		t.Fatalf("NewMockSource() unexpected error = %v", err)
	}

	ctx := context.Background()
	if err := src.Connect(ctx); err != nil {
		t.Fatalf("Connect() unexpected error = %v", err)
	}
	if err := src.Disconnect(); err != nil {
		t.Fatalf("Disconnect() unexpected error = %v", err)
	}
	if err := src.Disconnect(); err != nil {
		t.Errorf("Disconnect() second call error = %v, want nil", err)
	}
	if src.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}

	// Reconnect works and is counted.
	if err := src.Connect(ctx); err != nil {
		t.Fatalf("Connect() after Disconnect error = %v", err)
	}
	defer src.Disconnect()
	if got := src.Stats().Reconnects; got != 1 {
		t.Errorf("Stats() Reconnects = %d, want 1", got)
	}
}

// TestMockSource_ApplyControl tests control validation and rate
// limiting.
func TestMockSource_ApplyControl(t *testing.T) {
	src, err := camera.NewMockSource(64, 48, 30, t.TempDir())
	if err != nil {
		t.Fatalf("NewMockSource() unexpected error = %v", err)
	}

	if err := src.ApplyControl("tilt", 5); !errors.Is(err, camera.ErrUnknownControl) {
		t.Errorf("ApplyControl(tilt) error = %v, want ErrUnknownControl", err)
	}

	if err := src.ApplyControl(camera.ControlFocus, 140); err != nil {
		t.Fatalf("ApplyControl(focus) unexpected error = %v", err)
	}
	if v, ok := src.Control(camera.ControlFocus); !ok || v != 140 {
		t.Errorf("Control(focus) = (%d, %v), want (140, true)", v, ok)
	}

	// Immediate second change to the same control is dropped.
	if err := src.ApplyControl(camera.ControlFocus, 150); !errors.Is(err, camera.ErrRateLimited) {
		t.Errorf("ApplyControl(focus) rapid error = %v, want ErrRateLimited", err)
	}
	if v, _ := src.Control(camera.ControlFocus); v != 140 {
		t.Errorf("Control(focus) after dropped change = %d, want 140", v)
	}

	// A different control is not affected.
	if err := src.ApplyControl(camera.ControlExposure, 25); err != nil {
		t.Errorf("ApplyControl(exposure) unexpected error = %v", err)
	}
}
