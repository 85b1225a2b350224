package v4l2

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// pipelineElements holds references to the GStreamer elements that are
// touched after construction: teardown, control updates, and the two
// appsinks the callbacks hang off.
type pipelineElements struct {
	pipeline    *gst.Pipeline
	source      *gst.Element
	previewSink *app.Sink
	stillSink   *app.Sink
}

// buildPipeline creates and configures the capture pipeline. The
// pipeline is configured but not started; the caller sets it to
// PLAYING.
//
// Shape, in gst-launch notation:
//
//	v4l2src ! videoflip ! tee name=t
//	t. ! queue ! videoconvert ! videoscale ! videorate ! caps(RGB) ! appsink
//	t. ! queue ! videoconvert ! jpegenc ! appsink
//
// The first branch delivers RGB frames at the analysis size and
// framerate; the second keeps full sensor resolution and encodes JPEG
// on demand.
func buildPipeline(cfg Config, controls map[string]int) (*pipelineElements, error) {
	// Safe to call multiple times.
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", cfg.Device)
	if s := controlsStructure(controls); s != nil {
		src.SetProperty("extra-controls", s)
	}

	var flip *gst.Element
	if cfg.Rotate180 {
		flip, err = gst.NewElement("videoflip")
		if err != nil {
			return nil, fmt.Errorf("failed to create videoflip: %w", err)
		}
		flip.SetProperty("method", 2) // rotate-180
	}

	tee, err := gst.NewElement("tee")
	if err != nil {
		return nil, fmt.Errorf("failed to create tee: %w", err)
	}

	// Preview branch
	previewQueue, err := gst.NewElement("queue")
	if err != nil {
		return nil, fmt.Errorf("failed to create preview queue: %w", err)
	}
	previewQueue.SetProperty("max-size-buffers", uint(1))
	previewQueue.SetProperty("leaky", 2) // downstream: drop oldest

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0) // auto-detect cores

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)     // never duplicate frames
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsStr := buildPreviewCaps(cfg.Width, cfg.Height, cfg.FPS)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	previewSink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create preview appsink: %w", err)
	}
	previewSink.SetProperty("sync", false) // real-time, no clock sync
	previewSink.SetProperty("max-buffers", uint(1))
	previewSink.SetProperty("drop", true) // keep only the latest frame
	previewSink.SetProperty("qos", true)  // let upstream drop when late

	// Still branch
	stillQueue, err := gst.NewElement("queue")
	if err != nil {
		return nil, fmt.Errorf("failed to create still queue: %w", err)
	}
	stillQueue.SetProperty("max-size-buffers", uint(1))
	stillQueue.SetProperty("leaky", 2)

	stillConverter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create still videoconvert: %w", err)
	}

	encoder, err := gst.NewElement("jpegenc")
	if err != nil {
		return nil, fmt.Errorf("failed to create jpegenc: %w", err)
	}
	encoder.SetProperty("quality", cfg.StillQuality)

	stillSink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create still appsink: %w", err)
	}
	stillSink.SetProperty("sync", false)
	stillSink.SetProperty("max-buffers", uint(1))
	stillSink.SetProperty("drop", true)

	// Assemble. The tee hands out request pads, which gst element
	// linking resolves per branch.
	elements := []*gst.Element{src}
	if flip != nil {
		elements = append(elements, flip)
	}
	elements = append(elements,
		tee,
		previewQueue, converter, scaler, videorate, capsfilter, previewSink.Element,
		stillQueue, stillConverter, encoder, stillSink.Element,
	)
	if err := pipeline.AddMany(elements...); err != nil {
		return nil, fmt.Errorf("failed to add elements to pipeline: %w", err)
	}

	head := []*gst.Element{src}
	if flip != nil {
		head = append(head, flip)
	}
	head = append(head, tee)
	if err := gst.ElementLinkMany(head...); err != nil {
		return nil, fmt.Errorf("failed to link capture head: %w", err)
	}
	if err := gst.ElementLinkMany(
		tee, previewQueue, converter, scaler, videorate, capsfilter, previewSink.Element,
	); err != nil {
		return nil, fmt.Errorf("failed to link preview branch: %w", err)
	}
	if err := gst.ElementLinkMany(
		tee, stillQueue, stillConverter, encoder, stillSink.Element,
	); err != nil {
		return nil, fmt.Errorf("failed to link still branch: %w", err)
	}

	slog.Info("v4l2: pipeline created",
		"device", cfg.Device,
		"preview", fmt.Sprintf("%dx%d@%d", cfg.Width, cfg.Height, cfg.FPS),
		"rotate_180", cfg.Rotate180,
		"still_quality", cfg.StillQuality,
	)

	return &pipelineElements{
		pipeline:    pipeline,
		source:      src,
		previewSink: previewSink,
		stillSink:   stillSink,
	}, nil
}

// destroyPipeline stops the pipeline and releases its resources. Safe
// to call on an already-stopped pipeline.
func destroyPipeline(elems *pipelineElements) error {
	if elems == nil || elems.pipeline == nil {
		return nil
	}
	if err := elems.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildPreviewCaps builds the caps string for the preview branch.
//
// Format: "video/x-raw,format=RGB,width=W,height=H,framerate=N/1"
func buildPreviewCaps(width, height, fps int) string {
	return fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1",
		width, height, fps,
	)
}
