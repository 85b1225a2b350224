package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Orientation values accepted by camera.orientation.
const (
	OrientationNormal    = "normal"
	OrientationRotate180 = "rotate_180"
)

// Config is the complete birdbathd configuration.
type Config struct {
	Camera  CameraConfig  `yaml:"camera"`
	Motion  MotionConfig  `yaml:"motion_detection"`
	Storage StorageConfig `yaml:"storage"`
	Events  EventsConfig  `yaml:"events"`
	Health  HealthConfig  `yaml:"health"`
}

// CameraConfig contains device selection and control settings.
type CameraConfig struct {
	Device       string `yaml:"device"`        // V4L2 device path; empty selects the synthetic source
	Width        int    `yaml:"width"`         // preview width in pixels (default: 960)
	Height       int    `yaml:"height"`        // preview height in pixels (default: 540)
	FPS          int    `yaml:"fps"`           // preview framerate (default: 30)
	Mock         bool   `yaml:"mock"`          // force the synthetic source even when a device is set
	Focus        int    `yaml:"focus"`         // manual focus position 0-255 (default: 132)
	WhiteBalance int    `yaml:"white_balance"` // white balance temperature in kelvin (default: 6208)
	ISOMax       int    `yaml:"iso_max"`       // ISO ceiling (default: 800)
	ExposureMS   int    `yaml:"exposure_ms"`   // exposure time in milliseconds (default: 20)
	Orientation  string `yaml:"orientation"`   // normal or rotate_180 (default: rotate_180)
	StillQuality int    `yaml:"still_quality"` // JPEG quality for saved stills 1-100 (default: 90)
}

// MotionConfig contains motion detection tuning.
type MotionConfig struct {
	Threshold       int          `yaml:"threshold"`        // pixel delta threshold 0-255, 0 selects the default 50
	MinArea         int          `yaml:"min_area"`         // minimum contour area in pixels (default: 500)
	DebounceSeconds float64      `yaml:"debounce_seconds"` // minimum gap between captures (default: 4.0)
	ROI             RegionConfig `yaml:"roi"`
}

// RegionConfig defines the region of interest in pixel coordinates at a
// reference frame size. The region is rescaled when the live frame size
// differs from the reference.
type RegionConfig struct {
	Enabled   bool `yaml:"enabled"`
	X1        int  `yaml:"x1"`
	Y1        int  `yaml:"y1"`
	X2        int  `yaml:"x2"`
	Y2        int  `yaml:"y2"`
	RefWidth  int  `yaml:"ref_width"`  // frame width the coordinates were drawn at (default: 960)
	RefHeight int  `yaml:"ref_height"` // frame height the coordinates were drawn at (default: 540)
}

// StorageConfig contains still image storage settings.
type StorageConfig struct {
	SaveDir string `yaml:"save_dir"` // default: ~/BirdPhotos, ~ is expanded during validation
}

// EventsConfig contains MQTT publishing settings.
type EventsConfig struct {
	Broker      string `yaml:"broker"`       // broker host; empty disables publishing
	Port        int    `yaml:"port"`         // default: 1883
	ClientID    string `yaml:"client_id"`    // default: birdbathd
	TopicPrefix string `yaml:"topic_prefix"` // default: birdbath
}

// HealthConfig contains the health endpoint settings.
type HealthConfig struct {
	Addr string `yaml:"addr"` // listen address (default: :8089)
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Device:       "/dev/video0",
			Width:        960,
			Height:       540,
			FPS:          30,
			Focus:        132,
			WhiteBalance: 6208,
			ISOMax:       800,
			ExposureMS:   20,
			Orientation:  OrientationRotate180,
			StillQuality: 90,
		},
		Motion: MotionConfig{
			Threshold:       50,
			MinArea:         500,
			DebounceSeconds: 4.0,
			ROI: RegionConfig{
				Enabled:   true,
				X1:        43,
				Y1:        177,
				X2:        742,
				Y2:        464,
				RefWidth:  960,
				RefHeight: 540,
			},
		},
		Storage: StorageConfig{
			SaveDir: "~/BirdPhotos",
		},
		Events: EventsConfig{
			Port:        1883,
			ClientID:    "birdbathd",
			TopicPrefix: "birdbath",
		},
		Health: HealthConfig{
			Addr: ":8089",
		},
	}
}

// Load reads and parses a YAML configuration file. A missing file is not
// an error: the defaults are returned so a fresh install starts without a
// config step. Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if verr := Validate(cfg); verr != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", verr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories as
// needed.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandHome resolves a leading ~ against the current user's home
// directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
