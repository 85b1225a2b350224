// Package motion implements frame-differencing motion detection on
// grayscale images. The pipeline mirrors the classic recipe: blur,
// absolute difference against the previous frame, binary threshold,
// dilate, then connected-component extraction.
package motion

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/disintegration/gift"
	"github.com/harrydb/go/img/grayscale"
)

const (
	// blurSigma matches the 21x21 Gaussian kernel the motion tuning
	// was done against.
	blurSigma = 3.5
	// maskOn is the value of changed pixels in the binary mask.
	maskOn = 255
)

// Contour is one connected region of changed pixels. Coordinates are
// in the space of the frame handed to Detect.
type Contour struct {
	// Rect is the bounding rectangle of the component.
	Rect image.Rectangle
	// Area is the number of changed pixels in the component, not the
	// bounding rectangle area.
	Area int
}

// Result is the outcome of one Detect call.
type Result struct {
	Motion   bool
	Contours []Contour
}

// Detector finds motion by differencing each frame against the
// previous one. Safe for use from a single goroutine per frame stream;
// settings may be adjusted concurrently.
type Detector struct {
	mu        sync.Mutex
	threshold uint8
	minArea   int
	blur      *gift.GIFT
	dilate    *gift.GIFT
	prev      *image.Gray
}

// NewDetector creates a detector. threshold is the per-pixel delta a
// change must exceed (1..255), minArea the smallest component size in
// pixels that counts as motion.
func NewDetector(threshold, minArea int) (*Detector, error) {
	if threshold < 1 || threshold > 255 {
		return nil, fmt.Errorf("motion: threshold must be in 1..255, got %d", threshold)
	}
	if minArea < 1 {
		return nil, fmt.Errorf("motion: min area must be >= 1, got %d", minArea)
	}

	d := &Detector{
		threshold: uint8(threshold),
		minArea:   minArea,
		blur:      gift.New(gift.GaussianBlur(blurSigma)),
		dilate: gift.New(
			gift.Maximum(3, false),
			gift.Maximum(3, false),
		),
	}
	slog.Info("motion: detector initialized", "threshold", threshold, "min_area", minArea)
	return d, nil
}

// Detect runs one differencing pass against the previous frame. The
// first frame only records the baseline. A frame whose size differs
// from the baseline restarts it; nothing here panics on odd input.
func (d *Detector) Detect(frame *image.Gray) Result {
	if frame == nil || len(frame.Pix) == 0 {
		return Result{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blurred := image.NewGray(d.blur.Bounds(frame.Bounds()))
	d.blur.Draw(blurred, frame)

	if d.prev == nil || !d.prev.Bounds().Eq(blurred.Bounds()) {
		d.prev = blurred
		return Result{}
	}

	delta := absDiff(d.prev, blurred)
	mask := binarize(delta, d.threshold)

	dilated := image.NewGray(d.dilate.Bounds(mask.Bounds()))
	d.dilate.Draw(dilated, mask)

	cocos := grayscale.CoCos(dilated, maskOn, grayscale.NEIGHBOR8)

	var contours []Contour
	for _, coco := range cocos {
		if len(coco) < d.minArea {
			continue
		}
		contours = append(contours, Contour{
			Rect: boundsOf(coco),
			Area: len(coco),
		})
	}

	d.prev = blurred
	return Result{
		Motion:   len(contours) > 0,
		Contours: contours,
	}
}

// Reset clears the baseline; the next frame starts a new one.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.prev = nil
	d.mu.Unlock()
	slog.Debug("motion: baseline reset")
}

// SetThreshold adjusts the pixel delta threshold at runtime.
func (d *Detector) SetThreshold(threshold int) error {
	if threshold < 1 || threshold > 255 {
		return fmt.Errorf("motion: threshold must be in 1..255, got %d", threshold)
	}
	d.mu.Lock()
	d.threshold = uint8(threshold)
	d.mu.Unlock()
	slog.Info("motion: threshold updated", "threshold", threshold)
	return nil
}

// SetMinArea adjusts the smallest component size that counts as motion.
func (d *Detector) SetMinArea(minArea int) error {
	if minArea < 1 {
		return fmt.Errorf("motion: min area must be >= 1, got %d", minArea)
	}
	d.mu.Lock()
	d.minArea = minArea
	d.mu.Unlock()
	slog.Info("motion: min area updated", "min_area", minArea)
	return nil
}

// absDiff returns the per-pixel absolute difference of two images with
// identical bounds.
func absDiff(a, b *image.Gray) *image.Gray {
	out := image.NewGray(a.Bounds())
	for i := range a.Pix {
		va, vb := a.Pix[i], b.Pix[i]
		if va > vb {
			out.Pix[i] = va - vb
		} else {
			out.Pix[i] = vb - va
		}
	}
	return out
}

// binarize produces a mask where deltas strictly above level turn on.
func binarize(g *image.Gray, level uint8) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, v := range g.Pix {
		if v > level {
			out.Pix[i] = maskOn
		}
	}
	return out
}

// boundsOf computes the bounding rectangle of a component.
func boundsOf(coco grayscale.CoCo) image.Rectangle {
	if len(coco) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{
		Min: coco[0],
		Max: coco[0].Add(image.Pt(1, 1)),
	}
	for _, p := range coco[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X+1 > r.Max.X {
			r.Max.X = p.X + 1
		}
		if p.Y+1 > r.Max.Y {
			r.Max.Y = p.Y + 1
		}
	}
	return r
}
