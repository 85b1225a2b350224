// Package health serves liveness, readiness, metrics, and a live
// preview frame over HTTP.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/camera"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/events"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/storage"
)

const previewQuality = 80

// Status is the daemon-wide snapshot served on /readiness. The owner
// fills every field except Status and UptimeSeconds, which the server
// derives per request.
type Status struct {
	Status            string `json:"status"` // healthy, degraded, unhealthy
	UptimeSeconds     int64  `json:"uptime_seconds"`
	Running           bool   `json:"running"`
	CameraConnected   bool   `json:"camera_connected"`
	BrokerEnabled     bool   `json:"broker_enabled"`
	BrokerConnected   bool   `json:"broker_connected"`
	MotionPaused      bool   `json:"motion_paused"`
	FramesProduced    uint64 `json:"frames_produced"`
	FramesForwarded   uint64 `json:"frames_forwarded"`
	FramesAnalyzed    uint64 `json:"frames_analyzed"`
	MotionDetections  uint64 `json:"motion_detections"`
	CapturesTriggered uint64 `json:"captures_triggered"`
	StillsSaved       uint64 `json:"stills_saved"`
	Reconnects        uint64 `json:"reconnects"`
	Freezes           uint64 `json:"freezes"`
	Outages           uint64 `json:"outages"`
	EventsPublished   uint64 `json:"events_published"`
	EventErrors       uint64 `json:"event_errors"`
}

// Server is the HTTP health endpoint. Endpoints:
//
//	/health     liveness, always 200 while the process runs
//	/readiness  full status JSON, 503 when unhealthy
//	/metrics    counters in Prometheus text format
//	/frame.jpg  most recent preview frame as JPEG
type Server struct {
	addr    string
	status  func() Status
	frames  *events.Latest[camera.Frame]
	started time.Time
	srv     *http.Server
}

// New creates a health server. status supplies the readiness snapshot;
// frames supplies /frame.jpg and may be nil to disable the endpoint.
func New(addr string, status func() Status, frames *events.Latest[camera.Frame]) (*Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("health server address is required")
	}
	if status == nil {
		return nil, fmt.Errorf("status function is required")
	}

	s := &Server{
		addr:    addr,
		status:  status,
		frames:  frames,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleLiveness)
	mux.HandleFunc("/readiness", s.handleReadiness)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/frame.jpg", s.handleFrame)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Start binds the listen address and serves in the background. Bind
// errors surface here; later serve errors only log.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health server listen failed: %w", err)
	}

	slog.Info("health: server started",
		"addr", s.addr,
		"endpoints", []string{"/health", "/readiness", "/metrics", "/frame.jpg"},
	)

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("health: server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// classify derives the overall status string from the snapshot.
func classify(st Status) string {
	switch {
	case !st.Running:
		return "unhealthy"
	case !st.CameraConnected:
		return "degraded"
	case st.BrokerEnabled && !st.BrokerConnected:
		return "degraded"
	default:
		return "healthy"
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "alive",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	st := s.status()
	st.Status = classify(st)
	st.UptimeSeconds = int64(time.Since(s.started).Seconds())

	code := http.StatusOK
	if st.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(st)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	st := s.status()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)

	writeGauge(w, "birdbath_up", boolValue(st.Running))
	writeGauge(w, "birdbath_camera_connected", boolValue(st.CameraConnected))
	writeGauge(w, "birdbath_broker_connected", boolValue(st.BrokerConnected))
	writeGauge(w, "birdbath_motion_paused", boolValue(st.MotionPaused))
	writeGauge(w, "birdbath_uptime_seconds", uint64(time.Since(s.started).Seconds()))
	writeCounter(w, "birdbath_frames_produced_total", st.FramesProduced)
	writeCounter(w, "birdbath_frames_forwarded_total", st.FramesForwarded)
	writeCounter(w, "birdbath_frames_analyzed_total", st.FramesAnalyzed)
	writeCounter(w, "birdbath_motion_detections_total", st.MotionDetections)
	writeCounter(w, "birdbath_captures_triggered_total", st.CapturesTriggered)
	writeCounter(w, "birdbath_stills_saved_total", st.StillsSaved)
	writeCounter(w, "birdbath_camera_reconnects_total", st.Reconnects)
	writeCounter(w, "birdbath_camera_freezes_total", st.Freezes)
	writeCounter(w, "birdbath_camera_outages_total", st.Outages)
	writeCounter(w, "birdbath_events_published_total", st.EventsPublished)
	writeCounter(w, "birdbath_event_errors_total", st.EventErrors)
}

func writeCounter(w http.ResponseWriter, name string, value uint64) {
	fmt.Fprintf(w, "# TYPE %s counter\n%s %d\n", name, name, value)
}

func writeGauge(w http.ResponseWriter, name string, value uint64) {
	fmt.Fprintf(w, "# TYPE %s gauge\n%s %d\n", name, name, value)
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// handleFrame serves the newest preview frame. The mailbox is peeked,
// not consumed, so repeated requests re-serve the same frame until the
// camera produces a newer one.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		http.Error(w, "frame preview not enabled", http.StatusNotFound)
		return
	}

	frame, ok := s.frames.TryReceive()
	if !ok {
		http.Error(w, "no frame available", http.StatusNotFound)
		return
	}

	img, err := storage.RGBToImage(frame.Data, frame.Width, frame.Height)
	if err != nil {
		slog.Warn("health: frame conversion failed", "error", err)
		http.Error(w, "frame conversion failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Frame-Seq", fmt.Sprintf("%d", frame.Seq))
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: previewQuality}); err != nil {
		slog.Warn("health: frame encode failed", "error", err)
	}
}
