package tracking

import (
	"errors"
	"fmt"
	"image"

	"github.com/banshee-data/boxtrack/internal/annotation"
)

// DefaultMaxFailures is the number of consecutive failed steps a session
// tolerates. The next failure ends it.
const DefaultMaxFailures = 50

// ErrSessionIdle is returned by Step when no tracker is armed.
var ErrSessionIdle = errors.New("tracking: session is idle")

// IdleReason records why a session last became idle.
type IdleReason string

const (
	IdleNeverArmed       IdleReason = "never_armed"
	IdleReset            IdleReason = "reset"
	IdleCancelled        IdleReason = "cancelled"
	IdleFailureThreshold IdleReason = "failure_threshold"
	IdleArmFailed        IdleReason = "arm_failed"
)

// Target identifies what an armed session is tracking.
type Target struct {
	Track   string  // root box id of the track
	Segment string  // segment new boxes are appended to
	Box     string  // box the tracker was last anchored on
	At      float64 // time of Box
}

// Session owns at most one tracker instance and counts its consecutive
// failures.
type Session struct {
	factory     Factory
	maxFailures int

	alg         Algorithm
	target      Target
	failures    int
	lastSuccess float64
	idle        IdleReason
}

// NewSession returns an idle session building trackers with factory. A
// negative maxFailures selects DefaultMaxFailures.
func NewSession(factory Factory, maxFailures int) *Session {
	if maxFailures < 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Session{
		factory:     factory,
		maxFailures: maxFailures,
		lastSuccess: -1,
		idle:        IdleNeverArmed,
	}
}

// Arm discards any current tracker and builds a new one locked on roi in
// frame. On error the session is left idle.
func (s *Session) Arm(frame *image.RGBA, frameHeight int, roi annotation.Region, target Target) error {
	s.release()
	s.failures = 0
	if frame == nil {
		s.idle = IdleArmFailed
		return errors.New("arm tracker: nil frame")
	}
	if roi.Empty() {
		s.idle = IdleArmFailed
		return fmt.Errorf("arm tracker: empty region %+v", roi)
	}
	alg, err := s.factory(frame, frameHeight, roi)
	if err != nil {
		s.idle = IdleArmFailed
		return fmt.Errorf("arm tracker: %w", err)
	}
	s.alg = alg
	s.target = target
	s.lastSuccess = target.At
	return nil
}

// Step runs the tracker on frame. It returns ok=false when the target was
// not found. The failure that pushes the count past the limit releases the
// tracker and leaves the session idle.
func (s *Session) Step(frame *image.RGBA) (annotation.Region, bool, error) {
	if s.alg == nil {
		return annotation.Region{}, false, ErrSessionIdle
	}
	region, ok := s.alg.Step(frame)
	if ok {
		s.failures = 0
		return region, true, nil
	}
	s.failures++
	if s.failures > s.maxFailures {
		s.release()
		s.idle = IdleFailureThreshold
	}
	return annotation.Region{}, false, nil
}

// Reset releases the tracker, if any, and leaves the session idle.
func (s *Session) Reset() {
	s.resetWith(IdleReset)
}

// Cancel is Reset on behalf of the user.
func (s *Session) Cancel() {
	s.resetWith(IdleCancelled)
}

func (s *Session) resetWith(reason IdleReason) {
	if s.alg != nil {
		s.idle = reason
	}
	s.release()
	s.failures = 0
}

func (s *Session) release() {
	if s.alg != nil {
		s.alg.Release()
		s.alg = nil
	}
	s.target = Target{}
}

// Retarget moves the active segment to segment, anchored on box, without
// rebuilding the tracker.
func (s *Session) Retarget(segment, box string, at float64) {
	if s.alg == nil {
		return
	}
	s.target.Segment = segment
	s.target.Box = box
	s.target.At = at
}

// Succeeded records t as the time of the latest successful step.
func (s *Session) Succeeded(t float64) {
	if s.alg != nil {
		s.lastSuccess = t
	}
}

// Armed reports whether a tracker is live.
func (s *Session) Armed() bool { return s.alg != nil }

// Target returns the current target. It is zero when idle.
func (s *Session) Target() Target { return s.target }

// Failures returns the consecutive failure count.
func (s *Session) Failures() int { return s.failures }

// LastSuccess returns the time of the latest successful step, or the anchor
// time if no step has succeeded yet. It survives Reset so a stopped loop can
// return playback there, and is -1 before the first Arm.
func (s *Session) LastSuccess() float64 { return s.lastSuccess }

// IdleReason reports why the session last became idle. It is only
// meaningful while the session is not armed.
func (s *Session) IdleReason() IdleReason { return s.idle }
