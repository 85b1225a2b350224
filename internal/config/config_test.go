package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/config"
)

// TestValidate_Errors tests fail-fast validation of impossible values.
func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *config.Config) {},
			wantErr: false,
		},
		{
			name:    "negative width",
			mutate:  func(c *config.Config) { c.Camera.Width = -1 },
			wantErr: true,
			errMsg:  "camera dimensions",
		},
		{
			name:    "negative fps",
			mutate:  func(c *config.Config) { c.Camera.FPS = -5 },
			wantErr: true,
			errMsg:  "camera.fps",
		},
		{
			name:    "focus out of range",
			mutate:  func(c *config.Config) { c.Camera.Focus = 300 },
			wantErr: true,
			errMsg:  "camera.focus",
		},
		{
			name:    "bad orientation",
			mutate:  func(c *config.Config) { c.Camera.Orientation = "rotate_90" },
			wantErr: true,
			errMsg:  "camera.orientation",
		},
		{
			name:    "still quality over 100",
			mutate:  func(c *config.Config) { c.Camera.StillQuality = 150 },
			wantErr: true,
			errMsg:  "still_quality",
		},
		{
			name:    "threshold over 255",
			mutate:  func(c *config.Config) { c.Motion.Threshold = 256 },
			wantErr: true,
			errMsg:  "threshold",
		},
		{
			name:    "negative min area",
			mutate:  func(c *config.Config) { c.Motion.MinArea = -10 },
			wantErr: true,
			errMsg:  "min_area",
		},
		{
			name:    "negative debounce",
			mutate:  func(c *config.Config) { c.Motion.DebounceSeconds = -1 },
			wantErr: true,
			errMsg:  "debounce_seconds",
		},
		{
			name:    "negative region coordinate",
			mutate:  func(c *config.Config) { c.Motion.ROI.X1 = -3 },
			wantErr: true,
			errMsg:  "region coordinates",
		},
		{
			name:    "port out of range",
			mutate:  func(c *config.Config) { c.Events.Port = 70000 },
			wantErr: true,
			errMsg:  "events.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.errMsg)
					return
				}
				if tt.errMsg != "" && !contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

// TestValidate_FillsDefaults tests that zero values select defaults.
func TestValidate_FillsDefaults(t *testing.T) {
	cfg := &config.Config{}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	if cfg.Camera.Width != 960 || cfg.Camera.Height != 540 {
		t.Errorf("Validate() camera dims = %dx%d, want 960x540", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Camera.FPS != 30 {
		t.Errorf("Validate() fps = %d, want 30", cfg.Camera.FPS)
	}
	if !cfg.Camera.Mock {
		t.Error("Validate() empty device should force mock source")
	}
	if cfg.Camera.Focus != 132 {
		t.Errorf("Validate() focus = %d, want 132", cfg.Camera.Focus)
	}
	if cfg.Camera.Orientation != config.OrientationRotate180 {
		t.Errorf("Validate() orientation = %q, want %q", cfg.Camera.Orientation, config.OrientationRotate180)
	}
	if cfg.Motion.Threshold != 50 {
		t.Errorf("Validate() threshold = %d, want 50", cfg.Motion.Threshold)
	}
	if cfg.Motion.MinArea != 500 {
		t.Errorf("Validate() min_area = %d, want 500", cfg.Motion.MinArea)
	}
	if cfg.Motion.DebounceSeconds != 4.0 {
		t.Errorf("Validate() debounce = %v, want 4.0", cfg.Motion.DebounceSeconds)
	}
	if cfg.Motion.ROI.RefWidth != 960 || cfg.Motion.ROI.RefHeight != 540 {
		t.Errorf("Validate() roi ref dims = %dx%d, want 960x540", cfg.Motion.ROI.RefWidth, cfg.Motion.ROI.RefHeight)
	}
	if cfg.Events.Port != 1883 {
		t.Errorf("Validate() events port = %d, want 1883", cfg.Events.Port)
	}
	if cfg.Health.Addr != ":8089" {
		t.Errorf("Validate() health addr = %q, want :8089", cfg.Health.Addr)
	}
}

// TestDefault_RegionCorners tests that the default watch region stores
// corner coordinates, not a width and height.
func TestDefault_RegionCorners(t *testing.T) {
	r := config.Default().Motion.ROI
	want := config.RegionConfig{
		Enabled: true,
		X1:      43, Y1: 177, X2: 742, Y2: 464,
		RefWidth: 960, RefHeight: 540,
	}
	if r != want {
		t.Errorf("Default() region = %+v, want %+v", r, want)
	}
	if r.X2-r.X1 != 699 || r.Y2-r.Y1 != 287 {
		t.Errorf("Default() region span = %dx%d, want 699x287", r.X2-r.X1, r.Y2-r.Y1)
	}
	if r.X2 > r.RefWidth || r.Y2 > r.RefHeight {
		t.Errorf("Default() region corner (%d,%d) outside %dx%d reference frame", r.X2, r.Y2, r.RefWidth, r.RefHeight)
	}
}

// TestValidate_DegenerateRegionDisabled tests that an inverted or empty
// region is disabled instead of rejected.
func TestValidate_DegenerateRegionDisabled(t *testing.T) {
	tests := []struct {
		name           string
		x1, y1, x2, y2 int
	}{
		{name: "inverted x", x1: 100, y1: 10, x2: 50, y2: 60},
		{name: "inverted y", x1: 10, y1: 100, x2: 60, y2: 50},
		{name: "zero width", x1: 50, y1: 10, x2: 50, y2: 60},
		{name: "zero height", x1: 10, y1: 50, x2: 60, y2: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Motion.ROI = config.RegionConfig{
				Enabled: true,
				X1:      tt.x1, Y1: tt.y1, X2: tt.x2, Y2: tt.y2,
			}
			if err := config.Validate(cfg); err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
			if cfg.Motion.ROI.Enabled {
				t.Error("Validate() degenerate region left enabled")
			}
		})
	}
}

// TestValidate_ExpandsSaveDir tests home directory expansion.
func TestValidate_ExpandsSaveDir(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SaveDir = "~/BirdPhotos"

	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}
	if strings.HasPrefix(cfg.Storage.SaveDir, "~") {
		t.Errorf("Validate() save_dir = %q, want ~ expanded", cfg.Storage.SaveDir)
	}
	if !strings.HasSuffix(cfg.Storage.SaveDir, "BirdPhotos") {
		t.Errorf("Validate() save_dir = %q, want BirdPhotos suffix", cfg.Storage.SaveDir)
	}
}

// TestLoad_MissingFile tests that a missing config file yields defaults.
func TestLoad_MissingFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if cfg.Motion.Threshold != 50 {
		t.Errorf("Load() threshold = %d, want default 50", cfg.Motion.Threshold)
	}
	if cfg.Camera.Device != "/dev/video0" {
		t.Errorf("Load() device = %q, want /dev/video0", cfg.Camera.Device)
	}
}

// TestLoad_PartialFileKeepsDefaults tests that fields absent from the
// file keep their default values.
func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "motion_detection:\n  threshold: 80\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if cfg.Motion.Threshold != 80 {
		t.Errorf("Load() threshold = %d, want 80", cfg.Motion.Threshold)
	}
	if cfg.Motion.MinArea != 500 {
		t.Errorf("Load() min_area = %d, want default 500", cfg.Motion.MinArea)
	}
	if cfg.Camera.FPS != 30 {
		t.Errorf("Load() fps = %d, want default 30", cfg.Camera.FPS)
	}
}

// TestLoad_BadYAML tests parse failure reporting.
func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("motion_detection: ["), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("Load() expected parse error, got nil")
	}
	if !contains(err.Error(), "failed to parse config") {
		t.Errorf("Load() error = %q, want parse failure", err.Error())
	}
}

// TestSaveLoad_RoundTrip tests that Save output loads back unchanged.
func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := config.Default()
	cfg.Motion.Threshold = 75
	cfg.Motion.ROI.X1 = 10
	cfg.Events.Broker = "broker.local"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("Save() unexpected error = %v", err)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if loaded.Motion.Threshold != 75 {
		t.Errorf("round trip threshold = %d, want 75", loaded.Motion.Threshold)
	}
	if loaded.Motion.ROI.X1 != 10 {
		t.Errorf("round trip roi x1 = %d, want 10", loaded.Motion.ROI.X1)
	}
	if loaded.Events.Broker != "broker.local" {
		t.Errorf("round trip broker = %q, want broker.local", loaded.Events.Broker)
	}
}

// Helper functions

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
