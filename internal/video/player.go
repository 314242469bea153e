// Package video plays a decoded frame sequence as a seekable video.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"golang.org/x/image/draw"

	"github.com/banshee-data/boxtrack/internal/monitoring"
)

// ErrNoFrames is returned when a player would have nothing to show.
var ErrNoFrames = errors.New("video: no frames")

type seekListener struct {
	id int
	fn func()
}

// Player presents a fixed-rate frame sequence. Seeks complete
// asynchronously: RequestSeek only queues a request, and each completion
// is delivered to the OnSeeked callbacks by Pump or Run, one at a time.
type Player struct {
	mu        sync.Mutex
	frames    []image.Image
	fps       float64
	now       float64
	pending   []float64
	listeners []seekListener
	nextID    int

	wake chan struct{}
	logf func(format string, v ...interface{})
}

// NewPlayer returns a player positioned at time zero.
func NewPlayer(frames []image.Image, fps float64) (*Player, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return nil, fmt.Errorf("video: invalid frame rate %v", fps)
	}
	return &Player{
		frames: frames,
		fps:    fps,
		wake:   make(chan struct{}, 1),
		logf:   monitoring.Component("video"),
	}, nil
}

// FPS returns the frame rate.
func (p *Player) FPS() float64 { return p.fps }

// Len returns the number of frames.
func (p *Player) Len() int { return len(p.frames) }

// Duration returns the length of the sequence in seconds.
func (p *Player) Duration() float64 {
	return float64(len(p.frames)) / p.fps
}

// CurrentTime returns the position of the last completed seek.
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

// FrameIndex returns the index of the frame shown at time t.
func (p *Player) FrameIndex(t float64) int {
	// a small tolerance keeps t = k/fps on frame k despite rounding
	i := int(math.Floor(t*p.fps + 1e-6))
	if i < 0 {
		return 0
	}
	if i >= len(p.frames) {
		return len(p.frames) - 1
	}
	return i
}

// Frame returns frame i.
func (p *Player) Frame(i int) image.Image {
	return p.frames[i]
}

// RequestSeek queues a seek to t, clamped to the sequence.
func (p *Player) RequestSeek(t float64) {
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	if d := p.Duration(); t > d {
		t = d
	}
	p.mu.Lock()
	p.pending = append(p.pending, t)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// OnSeeked registers fn to run after every completed seek.
func (p *Player) OnSeeked(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, seekListener{id: id, fn: fn})
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

// Pending returns the number of queued seeks.
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// step completes the oldest queued seek and reports whether there was one.
func (p *Player) step() bool {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return false
	}
	p.now = p.pending[0]
	p.pending = p.pending[1:]
	listeners := make([]seekListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, l := range listeners {
		l.fn()
	}
	return true
}

// Pump completes queued seeks, including any queued by the callbacks, until
// none remain. It returns the number completed.
func (p *Player) Pump() int {
	n := 0
	for p.step() {
		n++
	}
	return n
}

// Run completes seeks as they are requested until ctx is done.
func (p *Player) Run(ctx context.Context) error {
	for {
		if n := p.Pump(); n > 0 {
			p.logf("completed %d seeks, now at %.3fs", n, p.CurrentTime())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
		}
	}
}

// DrawCurrentFrame returns the current frame resampled by scale.
func (p *Player) DrawCurrentFrame(scale float64) (*image.RGBA, error) {
	if scale <= 0 || scale > 1 {
		return nil, fmt.Errorf("video: scale %v out of range (0, 1]", scale)
	}
	src := p.frames[p.FrameIndex(p.CurrentTime())]
	return Resample(src, scale), nil
}

// Resample scales src by scale with bilinear filtering. Each output
// dimension is rounded down and kept at least one pixel.
func Resample(src image.Image, scale float64) *image.RGBA {
	b := src.Bounds()
	w := int(math.Floor(float64(b.Dx()) * scale))
	h := int(math.Floor(float64(b.Dy()) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
