// Command birdbathd watches a bird bath through a V4L2 camera, captures
// stills when something moves, and publishes events over MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/camera"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/camera/v4l2"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/capture"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/config"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/events"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/health"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/notify"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/roi"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/supervisor"
)

const (
	defaultConfigPath = "config/birdbath.yaml"
	shutdownTimeout   = 5 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	mock := flag.Bool("mock", false, "Use the synthetic camera source")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting birdbathd",
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	src, err := newSource(cfg, *mock)
	if err != nil {
		slog.Error("failed to create camera source", "error", err)
		os.Exit(1)
	}

	frames := events.New[camera.Frame]()
	motions := events.New[capture.MotionEvent]()
	captures := events.New[capture.CaptureEvent]()
	conns := events.New[supervisor.ConnectionEvent]()

	controller, err := capture.NewController(captureConfig(cfg), src, motions, captures)
	if err != nil {
		slog.Error("failed to create capture controller", "error", err)
		os.Exit(1)
	}

	sup, err := supervisor.New(supervisor.DefaultConfig(), src, controller, frames, conns)
	if err != nil {
		slog.Error("failed to create supervisor", "error", err)
		os.Exit(1)
	}

	notifier := notify.New(cfg.Events, motions, captures, conns, notify.Callbacks{
		SetThreshold: controller.SetThreshold,
		SetMinArea:   controller.SetMinArea,
		SetRegion:    controller.SetRegion,
		SetControl:   src.ApplyControl,
		Pause:        controller.Pause,
		Resume:       controller.Resume,
		Status:       mqttStatus(src, controller, sup),
	})
	if err := notifier.Start(ctx); err != nil {
		slog.Error("failed to start event publisher", "error", err)
		os.Exit(1)
	}

	previewFrames, err := frames.SubscribeDropOld("health-preview")
	if err != nil {
		slog.Error("failed to subscribe preview frames", "error", err)
		os.Exit(1)
	}
	healthSrv, err := health.New(cfg.Health.Addr, healthStatus(src, controller, sup, notifier), previewFrames)
	if err != nil {
		slog.Error("failed to create health server", "error", err)
		os.Exit(1)
	}
	if err := healthSrv.Start(); err != nil {
		slog.Error("failed to start health server", "error", err)
		os.Exit(1)
	}

	// First connect attempt. Failure is not fatal: the supervisor
	// retries on its own schedule.
	if err := src.Connect(ctx); err != nil {
		slog.Warn("initial camera connect failed, supervisor will retry", "error", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- sup.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("supervisor exited", "error", err)
		}
	}

	slog.Info("shutting down", "timeout", shutdownTimeout)
	sup.Stop()
	notifier.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		slog.Warn("health server shutdown failed", "error", err)
	}

	frames.Close()
	motions.Close()
	captures.Close()
	conns.Close()

	slog.Info("birdbathd stopped")
}

// newSource picks the camera implementation. An empty device path or
// the mock switches select the synthetic source.
func newSource(cfg *config.Config, forceMock bool) (camera.Source, error) {
	if forceMock || cfg.Camera.Mock || cfg.Camera.Device == "" {
		slog.Info("using synthetic camera source",
			"width", cfg.Camera.Width, "height", cfg.Camera.Height, "fps", cfg.Camera.FPS)
		return camera.NewMockSource(cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS, cfg.Storage.SaveDir)
	}

	return v4l2.New(v4l2.Config{
		Device:       cfg.Camera.Device,
		Width:        cfg.Camera.Width,
		Height:       cfg.Camera.Height,
		FPS:          cfg.Camera.FPS,
		Rotate180:    cfg.Camera.Orientation == config.OrientationRotate180,
		StillQuality: cfg.Camera.StillQuality,
		SaveDir:      cfg.Storage.SaveDir,
		Focus:        cfg.Camera.Focus,
		WhiteBalance: cfg.Camera.WhiteBalance,
		ISOMax:       cfg.Camera.ISOMax,
		ExposureMS:   cfg.Camera.ExposureMS,
	})
}

func captureConfig(cfg *config.Config) capture.Config {
	return capture.Config{
		Threshold: cfg.Motion.Threshold,
		MinArea:   cfg.Motion.MinArea,
		Debounce:  time.Duration(cfg.Motion.DebounceSeconds * float64(time.Second)),
		Region: roi.Region{
			X1: cfg.Motion.ROI.X1,
			Y1: cfg.Motion.ROI.Y1,
			X2: cfg.Motion.ROI.X2,
			Y2: cfg.Motion.ROI.Y2,
		},
		RegionEnabled: cfg.Motion.ROI.Enabled,
		RefWidth:      cfg.Motion.ROI.RefWidth,
		RefHeight:     cfg.Motion.ROI.RefHeight,
	}
}

// healthStatus assembles the readiness snapshot from every component's
// counters.
func healthStatus(src camera.Source, controller *capture.Controller, sup *supervisor.Supervisor, notifier *notify.Notifier) func() health.Status {
	return func() health.Status {
		camStats := src.Stats()
		capStats := controller.Stats()
		supStats := sup.Stats()
		notStats := notifier.Stats()

		var published uint64
		for _, count := range notStats.Published {
			published += count
		}

		return health.Status{
			Running:           supStats.Running,
			CameraConnected:   camStats.Connected,
			BrokerEnabled:     notifier.Enabled(),
			BrokerConnected:   notStats.Connected,
			MotionPaused:      capStats.Paused,
			FramesProduced:    camStats.FramesProduced,
			FramesForwarded:   supStats.FramesForwarded,
			FramesAnalyzed:    capStats.FramesAnalyzed,
			MotionDetections:  capStats.Detections,
			CapturesTriggered: capStats.CapturesTriggered,
			StillsSaved:       capStats.StillsSaved,
			Reconnects:        supStats.Reconnects,
			Freezes:           supStats.Freezes,
			Outages:           supStats.Outages,
			EventsPublished:   published,
			EventErrors:       notStats.Errors,
		}
	}
}

// mqttStatus answers get_status control commands.
func mqttStatus(src camera.Source, controller *capture.Controller, sup *supervisor.Supervisor) func() map[string]any {
	return func() map[string]any {
		camStats := src.Stats()
		capStats := controller.Stats()
		supStats := sup.Stats()

		return map[string]any{
			"running":            supStats.Running,
			"camera_connected":   camStats.Connected,
			"motion_paused":      capStats.Paused,
			"frames_produced":    camStats.FramesProduced,
			"frames_analyzed":    capStats.FramesAnalyzed,
			"motion_detections":  capStats.Detections,
			"captures_triggered": capStats.CapturesTriggered,
			"stills_saved":       capStats.StillsSaved,
			"reconnects":         supStats.Reconnects,
		}
	}
}
