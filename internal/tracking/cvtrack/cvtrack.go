// Package cvtrack backs tracking.Factory with an OpenCV single-object
// tracker. The OpenCV binding needs cgo and is only compiled with the
// "gocv" build tag; without it New reports ErrUnavailable.
package cvtrack

import (
	"errors"
	"image"

	"github.com/banshee-data/boxtrack/internal/annotation"
)

// ErrUnavailable is returned by New when the binary was built without
// OpenCV support.
var ErrUnavailable = errors.New("cvtrack: built without gocv support")

// ErrInitFailed is returned when OpenCV rejects the initial region.
var ErrInitFailed = errors.New("cvtrack: tracker initialisation failed")

// toRect converts a region to integer pixel bounds, clipped to frame.
func toRect(r annotation.Region, frame image.Rectangle) image.Rectangle {
	rect := image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height))
	return rect.Intersect(frame)
}

// toRegion converts OpenCV bounds back to a region.
func toRegion(r image.Rectangle) annotation.Region {
	return annotation.Region{
		X:      float64(r.Min.X),
		Y:      float64(r.Min.Y),
		Width:  float64(r.Dx()),
		Height: float64(r.Dy()),
	}
}
