package capture

import "time"

// ContourInfo is one motion contour in full-frame coordinates, shaped
// for JSON consumers.
type ContourInfo struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
	Area   int `json:"area"`
}

// MotionEvent is published for every detection, including ones the
// debounce window kept from triggering a capture. Captured tells the
// two apart.
type MotionEvent struct {
	At          time.Time     `json:"at"`
	TraceID     string        `json:"trace_id"`
	FrameSeq    uint64        `json:"frame_seq"`
	Contours    []ContourInfo `json:"contours"`
	LargestArea int           `json:"largest_area"`
	Captured    bool          `json:"captured"`
}

// CaptureEvent is published once a triggered still has been written to
// disk. TraceID matches the frame that triggered it.
type CaptureEvent struct {
	At      time.Time `json:"at"`
	TraceID string    `json:"trace_id"`
	Path    string    `json:"path"`
}
