// Package storage writes captured stills to disk.
package storage

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"
)

// StillPath returns the canonical path for a motion still captured at
// time t: <dir>/motion_<unix_timestamp>.jpeg.
func StillPath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("motion_%d.jpeg", t.Unix()))
}

// RGBToImage wraps packed RGB bytes in an image.RGBA, adding an opaque
// alpha channel.
func RGBToImage(data []byte, width, height int) (*image.RGBA, error) {
	expected := width * height * 3
	if len(data) != expected {
		return nil, fmt.Errorf("invalid RGB data size: got %d, expected %d", len(data), expected)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+0] = data[i*3+0]
		img.Pix[i*4+1] = data[i*3+1]
		img.Pix[i*4+2] = data[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

// SaveJPEG encodes img to path at the given quality, creating parent
// directories as needed. The write goes through a temp file and rename
// so watchers never see a half-written image.
func SaveJPEG(path string, img image.Image, quality int) error {
	if quality < 1 || quality > 100 {
		return fmt.Errorf("invalid JPEG quality %d (must be 1-100)", quality)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".still-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: quality}); err != nil {
		tmp.Close()
		return fmt.Errorf("JPEG encode failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move still into place: %w", err)
	}
	return nil
}

// SaveJPEGBytes writes already-encoded JPEG bytes to path via the same
// temp-and-rename dance.
func SaveJPEGBytes(path string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty JPEG data")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".still-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write still: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move still into place: %w", err)
	}
	return nil
}
