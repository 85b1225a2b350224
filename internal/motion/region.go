package motion

import (
	"fmt"
	"image"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/roi"
)

// GrayRegion converts the region r of a packed RGB frame to grayscale
// in a single pass. The returned image is zero-based; callers translate
// contour coordinates back to frame coordinates with the region offset.
func GrayRegion(rgb []byte, width, height int, r roi.Region) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("motion: invalid frame dimensions %dx%d", width, height)
	}
	if len(rgb) != width*height*3 {
		return nil, fmt.Errorf("motion: frame data is %d bytes, want %d for %dx%d RGB",
			len(rgb), width*height*3, width, height)
	}
	if !r.Valid() || r.X2 > width || r.Y2 > height {
		return nil, fmt.Errorf("motion: region [%d,%d,%d,%d] outside %dx%d frame",
			r.X1, r.Y1, r.X2, r.Y2, width, height)
	}

	out := image.NewGray(image.Rect(0, 0, r.Width(), r.Height()))
	for y := r.Y1; y < r.Y2; y++ {
		src := (y*width + r.X1) * 3
		dst := (y - r.Y1) * out.Stride
		for x := r.X1; x < r.X2; x++ {
			cr := uint32(rgb[src])
			cg := uint32(rgb[src+1])
			cb := uint32(rgb[src+2])
			out.Pix[dst] = uint8((77*cr + 150*cg + 29*cb) >> 8)
			src += 3
			dst++
		}
	}
	return out, nil
}
