//go:build gocv

package cvtrack

import (
	"fmt"
	"image"

	"github.com/banshee-data/boxtrack/internal/annotation"
	"github.com/banshee-data/boxtrack/internal/tracking"
	"gocv.io/x/gocv"
)

// Available reports whether OpenCV tracking is compiled in.
const Available = true

type milTracker struct {
	tracker gocv.Tracker
	bounds  image.Rectangle
}

// New returns a factory building MIL trackers.
func New() (tracking.Factory, error) {
	return newMIL, nil
}

func newMIL(frame *image.RGBA, frameHeight int, roi annotation.Region) (tracking.Algorithm, error) {
	mat, err := toMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	rect := toRect(roi, frame.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("%w: region %v outside %dx%d frame", ErrInitFailed, roi, frame.Bounds().Dx(), frameHeight)
	}
	t := gocv.NewTrackerMIL()
	if !t.Init(mat, rect) {
		t.Close()
		return nil, fmt.Errorf("%w: region %v", ErrInitFailed, rect)
	}
	return &milTracker{tracker: t, bounds: frame.Bounds()}, nil
}

func (m *milTracker) Step(frame *image.RGBA) (annotation.Region, bool) {
	mat, err := toMat(frame)
	if err != nil {
		return annotation.Region{}, false
	}
	defer mat.Close()

	rect, ok := m.tracker.Update(mat)
	if !ok {
		return annotation.Region{}, false
	}
	rect = rect.Intersect(m.bounds)
	if rect.Empty() {
		return annotation.Region{}, false
	}
	return toRegion(rect), true
}

func (m *milTracker) Release() {
	if m.tracker != nil {
		m.tracker.Close()
		m.tracker = nil
	}
}

// toMat converts an RGBA frame into a BGR Mat. The caller closes it.
func toMat(frame *image.RGBA) (gocv.Mat, error) {
	rgba, err := gocv.NewMatFromBytes(frame.Bounds().Dy(), frame.Bounds().Dx(), gocv.MatTypeCV8UC4, frame.Pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("frame to mat: %w", err)
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}
