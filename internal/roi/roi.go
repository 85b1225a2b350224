// Package roi handles the region of interest that motion detection is
// confined to. Regions are drawn against a reference frame size and
// rescaled here whenever the live frame size differs; every consumer
// goes through this package instead of scaling coordinates itself.
package roi

import (
	"image"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/config"
)

// Region is a rectangle in pixel coordinates. X1,Y1 is the top-left
// corner (inclusive), X2,Y2 the bottom-right corner (exclusive).
type Region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// FromConfig converts a configured region into a usable one. The second
// return is false when the region is disabled or degenerate.
func FromConfig(rc config.RegionConfig) (Region, bool) {
	if !rc.Enabled {
		return Region{}, false
	}
	r := Region{X1: rc.X1, Y1: rc.Y1, X2: rc.X2, Y2: rc.Y2}
	if !r.Valid() {
		return Region{}, false
	}
	return r, true
}

// Valid reports whether the region has positive area and non-negative
// coordinates.
func (r Region) Valid() bool {
	return r.X1 >= 0 && r.Y1 >= 0 && r.X2 > r.X1 && r.Y2 > r.Y1
}

// Width returns the region width in pixels.
func (r Region) Width() int {
	return r.X2 - r.X1
}

// Height returns the region height in pixels.
func (r Region) Height() int {
	return r.Y2 - r.Y1
}

// Area returns the pixel area of the region.
func (r Region) Area() int {
	return r.Width() * r.Height()
}

// Rect converts the region to an image.Rectangle. Only meaningful for
// valid regions; image.Rect canonicalizes inverted corners.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Scale maps the region from one frame size to another proportionally.
// Coordinates truncate toward zero. Scaling to the same size, or from
// a degenerate size, returns the region unchanged.
func (r Region) Scale(fromW, fromH, toW, toH int) Region {
	if fromW <= 0 || fromH <= 0 {
		return r
	}
	if fromW == toW && fromH == toH {
		return r
	}
	sx := float64(toW) / float64(fromW)
	sy := float64(toH) / float64(fromH)
	return Region{
		X1: int(float64(r.X1) * sx),
		Y1: int(float64(r.Y1) * sy),
		X2: int(float64(r.X2) * sx),
		Y2: int(float64(r.Y2) * sy),
	}
}

// Clamp restricts the region to a frame of the given dimensions. A
// region entirely outside the frame collapses to zero area; callers
// check Valid afterwards.
func (r Region) Clamp(frameW, frameH int) Region {
	return Region{
		X1: clamp(r.X1, 0, frameW),
		Y1: clamp(r.Y1, 0, frameH),
		X2: clamp(r.X2, 0, frameW),
		Y2: clamp(r.Y2, 0, frameH),
	}
}

// FitTo rescales the region from its reference frame size to the live
// frame size and clamps the result to the frame bounds.
func (r Region) FitTo(refW, refH, frameW, frameH int) Region {
	return r.Scale(refW, refH, frameW, frameH).Clamp(frameW, frameH)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
