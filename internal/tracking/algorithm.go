package tracking

import (
	"image"

	"github.com/banshee-data/boxtrack/internal/annotation"
)

// Algorithm is a single-object visual tracker seeded on one frame.
type Algorithm interface {
	// Step locates the target in frame. ok is false when the target was
	// not found; region is then meaningless.
	Step(frame *image.RGBA) (region annotation.Region, ok bool)
	// Release frees the tracker. It is called exactly once.
	Release()
}

// Factory builds an Algorithm locked on roi in frame. Coordinates are in
// frame pixels; frameHeight is the height of every frame the tracker will
// be given.
type Factory func(frame *image.RGBA, frameHeight int, roi annotation.Region) (Algorithm, error)

// Video is the playback surface the tracking loop drives.
type Video interface {
	// CurrentTime returns the playback position in seconds.
	CurrentTime() float64
	// Duration returns the length of the media in seconds.
	Duration() float64
	// RequestSeek asks for playback to move to t. Completion is reported
	// asynchronously to every OnSeeked callback.
	RequestSeek(t float64)
	// OnSeeked registers fn to run after each completed seek and returns a
	// function removing it.
	OnSeeked(fn func()) (detach func())
	// DrawCurrentFrame rasterises the current frame scaled by scale.
	DrawCurrentFrame(scale float64) (*image.RGBA, error)
}
