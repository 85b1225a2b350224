package v4l2

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/camera"
)

// onPreviewSample handles one RGB frame from the preview appsink. The
// buffer is copied out before unmap so the frame outlives the GStreamer
// memory it arrived in.
func (s *Source) onPreviewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("v4l2: failed to pull preview sample, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("v4l2: failed to get buffer from preview sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("v4l2: empty preview buffer, skipping frame")
		return gst.FlowOK
	}

	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	frame := camera.Frame{
		Seq:       s.seq.Add(1),
		Timestamp: time.Now(),
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Data:      frameData,
		TraceID:   uuid.New().String(),
	}

	if err := s.frames.Set(frame); err != nil {
		return gst.FlowEOS
	}
	s.produced.Add(1)
	return gst.FlowOK
}

// onStillSample drains the still branch continuously. Samples are
// discarded unless a capture was armed; the armed one is kept as
// encoded JPEG bytes for PollStill to persist.
func (s *Source) onStillSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}

	if !s.armed.CompareAndSwap(true, false) {
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		s.armed.Store(true)
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		s.armed.Store(true)
		return gst.FlowOK
	}

	jpegData := make([]byte, len(data))
	copy(jpegData, data)
	buffer.Unmap()

	if err := s.stills.Set(stillShot{data: jpegData, at: time.Now()}); err != nil {
		return gst.FlowEOS
	}
	slog.Info("v4l2: still captured", "size_bytes", len(jpegData))
	return gst.FlowOK
}
