//go:build !gocv

package cvtrack

import "github.com/banshee-data/boxtrack/internal/tracking"

// Available reports whether OpenCV tracking is compiled in.
const Available = false

// New reports ErrUnavailable; build with -tags gocv for OpenCV tracking.
func New() (tracking.Factory, error) {
	return nil, ErrUnavailable
}
