package config

import (
	"fmt"
	"log/slog"
)

// Validate checks the configuration and fills defaults for unset values.
// Zero values select defaults; impossible values are errors. The storage
// directory comes back with ~ expanded.
func Validate(cfg *Config) error {
	// Camera
	if cfg.Camera.Width < 0 || cfg.Camera.Height < 0 {
		return fmt.Errorf("camera dimensions must be >= 0")
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 960
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 540
	}
	if cfg.Camera.FPS < 0 {
		return fmt.Errorf("camera.fps must be >= 0")
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 30
	}
	if cfg.Camera.Device == "" {
		// No device means nothing real to open.
		cfg.Camera.Mock = true
	}
	if cfg.Camera.Focus < 0 || cfg.Camera.Focus > 255 {
		return fmt.Errorf("camera.focus must be in 0..255")
	}
	if cfg.Camera.Focus == 0 {
		cfg.Camera.Focus = 132
	}
	if cfg.Camera.WhiteBalance < 0 {
		return fmt.Errorf("camera.white_balance must be >= 0")
	}
	if cfg.Camera.WhiteBalance == 0 {
		cfg.Camera.WhiteBalance = 6208
	}
	if cfg.Camera.ISOMax < 0 {
		return fmt.Errorf("camera.iso_max must be >= 0")
	}
	if cfg.Camera.ISOMax == 0 {
		cfg.Camera.ISOMax = 800
	}
	if cfg.Camera.ExposureMS < 0 {
		return fmt.Errorf("camera.exposure_ms must be >= 0")
	}
	if cfg.Camera.ExposureMS == 0 {
		cfg.Camera.ExposureMS = 20
	}
	switch cfg.Camera.Orientation {
	case "":
		cfg.Camera.Orientation = OrientationRotate180
	case OrientationNormal, OrientationRotate180:
	default:
		return fmt.Errorf("camera.orientation must be %q or %q, got %q",
			OrientationNormal, OrientationRotate180, cfg.Camera.Orientation)
	}
	if cfg.Camera.StillQuality < 0 || cfg.Camera.StillQuality > 100 {
		return fmt.Errorf("camera.still_quality must be in 1..100")
	}
	if cfg.Camera.StillQuality == 0 {
		cfg.Camera.StillQuality = 90
	}

	// Motion detection
	if cfg.Motion.Threshold < 0 || cfg.Motion.Threshold > 255 {
		return fmt.Errorf("motion_detection.threshold must be in 0..255")
	}
	if cfg.Motion.Threshold == 0 {
		cfg.Motion.Threshold = 50
	}
	if cfg.Motion.MinArea < 0 {
		return fmt.Errorf("motion_detection.min_area must be >= 0")
	}
	if cfg.Motion.MinArea == 0 {
		cfg.Motion.MinArea = 500
	}
	if cfg.Motion.DebounceSeconds < 0 {
		return fmt.Errorf("motion_detection.debounce_seconds must be >= 0")
	}
	if cfg.Motion.DebounceSeconds == 0 {
		cfg.Motion.DebounceSeconds = 4.0
	}
	if err := validateRegion(&cfg.Motion.ROI); err != nil {
		return fmt.Errorf("roi validation failed: %w", err)
	}

	// Storage
	if cfg.Storage.SaveDir == "" {
		cfg.Storage.SaveDir = "~/BirdPhotos"
	}
	dir, err := expandHome(cfg.Storage.SaveDir)
	if err != nil {
		return fmt.Errorf("storage.save_dir: %w", err)
	}
	cfg.Storage.SaveDir = dir

	// Events
	if cfg.Events.Port < 0 || cfg.Events.Port > 65535 {
		return fmt.Errorf("events.port must be in 0..65535")
	}
	if cfg.Events.Port == 0 {
		cfg.Events.Port = 1883
	}
	if cfg.Events.ClientID == "" {
		cfg.Events.ClientID = "birdbathd"
	}
	if cfg.Events.TopicPrefix == "" {
		cfg.Events.TopicPrefix = "birdbath"
	}

	// Health
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":8089"
	}

	return nil
}

// validateRegion normalizes the region of interest. A degenerate region
// is disabled rather than rejected; the daemon then waits for a usable
// region instead of refusing to start.
func validateRegion(r *RegionConfig) error {
	if r.X1 < 0 || r.Y1 < 0 || r.X2 < 0 || r.Y2 < 0 {
		return fmt.Errorf("region coordinates must be >= 0")
	}
	if r.RefWidth < 0 || r.RefHeight < 0 {
		return fmt.Errorf("region reference dimensions must be >= 0")
	}
	if r.RefWidth == 0 {
		r.RefWidth = 960
	}
	if r.RefHeight == 0 {
		r.RefHeight = 540
	}
	if r.Enabled && (r.X2 <= r.X1 || r.Y2 <= r.Y1) {
		slog.Warn("config: degenerate region disabled",
			"x1", r.X1, "y1", r.Y1, "x2", r.X2, "y2", r.Y2)
		r.Enabled = false
	}
	return nil
}
