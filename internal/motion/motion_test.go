package motion_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/motion"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/roi"
)

// grayFrame builds a w x h grayscale frame filled with v.
func grayFrame(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// fillRect paints a rectangle of the frame with v.
func fillRect(g *image.Gray, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

// TestNewDetector_FailFast tests constructor validation.
func TestNewDetector_FailFast(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		minArea   int
		wantErr   bool
		errMsg    string
	}{
		{name: "valid", threshold: 50, minArea: 500, wantErr: false},
		{name: "threshold zero", threshold: 0, minArea: 500, wantErr: true, errMsg: "threshold"},
		{name: "threshold over 255", threshold: 256, minArea: 500, wantErr: true, errMsg: "threshold"},
		{name: "min area zero", threshold: 50, minArea: 0, wantErr: true, errMsg: "min area"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := motion.NewDetector(tt.threshold, tt.minArea)

			if tt.wantErr {
				if err == nil {
					t.Errorf("NewDetector() expected error containing %q, got nil", tt.errMsg)
					return
				}
				if !contains(err.Error(), tt.errMsg) {
					t.Errorf("NewDetector() error = %q, want error containing %q", err.Error(), tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("NewDetector() unexpected error = %v", err)
					return
				}
				if d == nil {
					t.Error("NewDetector() returned nil detector with no error")
				}
			}
		})
	}
}

// TestDetector_FirstFrameBaselines tests that the first frame only
// establishes the baseline.
func TestDetector_FirstFrameBaselines(t *testing.T) {
	d, err := motion.NewDetector(50, 500)
	if err != nil {
		t.Fatalf("NewDetector() unexpected error = %v", err)
	}

	res := d.Detect(grayFrame(100, 100, 0))
	if res.Motion {
		t.Error("Detect() first frame reported motion")
	}
	if len(res.Contours) != 0 {
		t.Errorf("Detect() first frame contours = %d, want 0", len(res.Contours))
	}
}

// TestDetector_IdenticalFrames tests that an unchanged scene is quiet.
func TestDetector_IdenticalFrames(t *testing.T) {
	d, err := motion.NewDetector(50, 500)
	if err != nil {
		t.Fatalf("NewDetector() unexpected error = %v", err)
	}

	d.Detect(grayFrame(100, 100, 128))
	for i := 0; i < 3; i++ {
		res := d.Detect(grayFrame(100, 100, 128))
		if res.Motion {
			t.Errorf("Detect() identical frame #%d reported motion", i)
		}
	}
}

// TestDetector_WhiteSquare tests the canonical detection case: a 30x30
// white square appearing on a black 100x100 frame must come back as a
// single contour of at least 900 pixels.
func TestDetector_WhiteSquare(t *testing.T) {
	d, err := motion.NewDetector(50, 500)
	if err != nil {
		t.Fatalf("NewDetector() unexpected error = %v", err)
	}

	d.Detect(grayFrame(100, 100, 0))

	frame := grayFrame(100, 100, 0)
	square := image.Rect(35, 35, 65, 65)
	fillRect(frame, square, 255)

	res := d.Detect(frame)
	if !res.Motion {
		t.Fatal("Detect() missed the white square")
	}
	if len(res.Contours) != 1 {
		t.Fatalf("Detect() contours = %d, want 1", len(res.Contours))
	}

	c := res.Contours[0]
	if c.Area < 900 {
		t.Errorf("Detect() contour area = %d, want >= 900", c.Area)
	}
	// Area counts changed pixels, never more than the bounding box.
	if c.Area > c.Rect.Dx()*c.Rect.Dy() {
		t.Errorf("Detect() contour area %d exceeds bounding box %v", c.Area, c.Rect)
	}
	// Blur and dilation smear the edges a few pixels; the contour must
	// still cover the square and stay near it.
	if !square.In(c.Rect) {
		t.Errorf("Detect() contour %v does not cover square %v", c.Rect, square)
	}
	if !c.Rect.In(image.Rect(25, 25, 75, 75)) {
		t.Errorf("Detect() contour %v strayed too far from square %v", c.Rect, square)
	}
}

// TestDetector_SmallBlobIgnored tests the minimum area filter.
func TestDetector_SmallBlobIgnored(t *testing.T) {
	d, err := motion.NewDetector(50, 500)
	if err != nil {
		t.Fatalf("NewDetector() unexpected error = %v", err)
	}

	d.Detect(grayFrame(100, 100, 0))

	frame := grayFrame(100, 100, 0)
	fillRect(frame, image.Rect(47, 47, 53, 53), 255)

	res := d.Detect(frame)
	if res.Motion {
		t.Errorf("Detect() reported motion for a 6x6 blob, contours = %+v", res.Contours)
	}
}

// TestDetector_DimensionChangeResets tests that a frame size change
// restarts the baseline instead of crashing.
func TestDetector_DimensionChangeResets(t *testing.T) {
	d, err := motion.NewDetector(50, 500)
	if err != nil {
		t.Fatalf("NewDetector() unexpected error = %v", err)
	}

	d.Detect(grayFrame(100, 100, 0))

	// New size: must not report motion, must rebaseline.
	if res := d.Detect(grayFrame(64, 64, 255)); res.Motion {
		t.Error("Detect() reported motion on dimension change")
	}
	if res := d.Detect(grayFrame(64, 64, 255)); res.Motion {
		t.Error("Detect() reported motion on identical frame after rebaseline")
	}

	// Motion at the new size still works.
	frame := grayFrame(64, 64, 255)
	fillRect(frame, image.Rect(10, 10, 54, 54), 0)
	res := d.Detect(frame)
	if !res.Motion {
		t.Error("Detect() missed motion after dimension change")
	}
}

// TestDetector_DegenerateInput tests nil and empty frames.
func TestDetector_DegenerateInput(t *testing.T) {
	d, err := motion.NewDetector(50, 500)
	if err != nil {
		t.Fatalf("NewDetector() unexpected error = %v", err)
	}

	d.Detect(grayFrame(100, 100, 0))

	if res := d.Detect(nil); res.Motion {
		t.Error("Detect(nil) reported motion")
	}
	if res := d.Detect(&image.Gray{}); res.Motion {
		t.Error("Detect(empty) reported motion")
	}

	// The baseline survives degenerate input.
	frame := grayFrame(100, 100, 0)
	fillRect(frame, image.Rect(35, 35, 65, 65), 255)
	if res := d.Detect(frame); !res.Motion {
		t.Error("Detect() lost the baseline after degenerate input")
	}
}

// TestDetector_Reset tests explicit baseline clearing.
func TestDetector_Reset(t *testing.T) {
	d, err := motion.NewDetector(50, 500)
	if err != nil {
		t.Fatalf("NewDetector() unexpected error = %v", err)
	}

	d.Detect(grayFrame(100, 100, 0))
	d.Reset()

	// First frame after Reset baselines again, so a changed scene is
	// not motion.
	frame := grayFrame(100, 100, 0)
	fillRect(frame, image.Rect(35, 35, 65, 65), 255)
	if res := d.Detect(frame); res.Motion {
		t.Error("Detect() reported motion on the baseline frame after Reset")
	}
}

// TestDetector_LiveTuning tests threshold and min area updates.
func TestDetector_LiveTuning(t *testing.T) {
	d, err := motion.NewDetector(200, 500)
	if err != nil {
		t.Fatalf("NewDetector() unexpected error = %v", err)
	}

	if err := d.SetThreshold(0); err == nil {
		t.Error("SetThreshold(0) expected error, got nil")
	}
	if err := d.SetMinArea(-1); err == nil {
		t.Error("SetMinArea(-1) expected error, got nil")
	}

	// Delta of 100 stays under threshold 200.
	d.Detect(grayFrame(100, 100, 0))
	frame := grayFrame(100, 100, 0)
	fillRect(frame, image.Rect(30, 30, 70, 70), 100)
	if res := d.Detect(frame); res.Motion {
		t.Error("Detect() reported motion below threshold")
	}

	if err := d.SetThreshold(50); err != nil {
		t.Fatalf("SetThreshold() unexpected error = %v", err)
	}
	// Back to black: delta 100 now clears threshold 50.
	if res := d.Detect(grayFrame(100, 100, 0)); !res.Motion {
		t.Error("Detect() missed motion after threshold update")
	}
}

// TestGrayRegion tests the crop-and-convert helper.
func TestGrayRegion(t *testing.T) {
	// 4x2 RGB frame: red, green, blue, white / all black.
	rgb := []byte{
		255, 0, 0, 0, 255, 0, 0, 0, 255, 255, 255, 255,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	g, err := motion.GrayRegion(rgb, 4, 2, roi.Region{X1: 0, Y1: 0, X2: 4, Y2: 2})
	if err != nil {
		t.Fatalf("GrayRegion() unexpected error = %v", err)
	}
	if g.Bounds().Dx() != 4 || g.Bounds().Dy() != 2 {
		t.Fatalf("GrayRegion() bounds = %v, want 4x2", g.Bounds())
	}

	// Luma (77r + 150g + 29b) >> 8.
	want := []uint8{76, 149, 28, 255}
	for i, w := range want {
		if got := g.Pix[i]; got != w {
			t.Errorf("GrayRegion() pixel %d = %d, want %d", i, got, w)
		}
	}
	for i := 4; i < 8; i++ {
		if g.Pix[i] != 0 {
			t.Errorf("GrayRegion() black pixel %d = %d, want 0", i, g.Pix[i])
		}
	}

	// Sub-region keeps zero-based bounds.
	sub, err := motion.GrayRegion(rgb, 4, 2, roi.Region{X1: 1, Y1: 0, X2: 3, Y2: 1})
	if err != nil {
		t.Fatalf("GrayRegion() sub-region unexpected error = %v", err)
	}
	if sub.Bounds() != image.Rect(0, 0, 2, 1) {
		t.Errorf("GrayRegion() sub-region bounds = %v, want (0,0)-(2,1)", sub.Bounds())
	}
	if sub.Pix[0] != 149 || sub.Pix[1] != 28 {
		t.Errorf("GrayRegion() sub-region pixels = %v, want [149 28]", sub.Pix[:2])
	}
}

// TestGrayRegion_Errors tests input validation.
func TestGrayRegion_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		w, h   int
		region roi.Region
		errMsg string
	}{
		{
			name: "short buffer",
			data: make([]byte, 10),
			w:    4, h: 2,
			region: roi.Region{X1: 0, Y1: 0, X2: 4, Y2: 2},
			errMsg: "frame data",
		},
		{
			name: "region outside frame",
			data: make([]byte, 4*2*3),
			w:    4, h: 2,
			region: roi.Region{X1: 0, Y1: 0, X2: 5, Y2: 2},
			errMsg: "outside",
		},
		{
			name: "invalid region",
			data: make([]byte, 4*2*3),
			w:    4, h: 2,
			region: roi.Region{X1: 3, Y1: 0, X2: 1, Y2: 2},
			errMsg: "outside",
		},
		{
			name: "zero dimensions",
			data: nil,
			w:    0, h: 0,
			region: roi.Region{},
			errMsg: "invalid frame dimensions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := motion.GrayRegion(tt.data, tt.w, tt.h, tt.region)
			if err == nil {
				t.Errorf("GrayRegion() expected error containing %q, got nil", tt.errMsg)
				return
			}
			if !contains(err.Error(), tt.errMsg) {
				t.Errorf("GrayRegion() error = %q, want error containing %q", err.Error(), tt.errMsg)
			}
		})
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
