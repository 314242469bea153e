package tracking

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/boxtrack/internal/annotation"
	"github.com/banshee-data/boxtrack/internal/notice"
	"github.com/banshee-data/boxtrack/internal/tracks"
)

type loopState int

const (
	stateInactive   loopState = iota
	stateRequesting           // seek issued, waiting for it to complete
)

type loop struct {
	state loopState

	// boundary is the time at which the loop must stop: the start of the
	// next segment of the track, or the end of the media.
	boundary       float64
	boundaryIsNext bool
	detach         func()

	steps   int
	boxes   int
	elapsed time.Duration
}

// Start begins tracking forward from the armed box. Boxes written by an
// earlier pass after the anchor box are deleted first. Start returns once
// the first seek has been requested; the loop then advances on each seek
// completion.
func (m *Manager) Start() error {
	if m.closed {
		return ErrClosed
	}
	if m.Tracking() {
		return ErrAlreadyTracking
	}
	if !m.session.Armed() {
		m.publish(notice.KindRejected, notice.ReasonNone, "Cannot start tracking without initialisation")
		return ErrNotArmed
	}

	target := m.session.Target()
	t, ok := m.tracks[target.Track]
	if !ok || !t.HasSegment(target.Segment) {
		m.session.Reset()
		m.publish(notice.KindRejected, notice.ReasonNone, "Cannot start tracking: the track no longer exists")
		return fmt.Errorf("%w: segment %s of track %s is gone", ErrNotArmed, target.Segment, target.Track)
	}

	if err := m.discardAfter(t, target); err != nil {
		return err
	}

	m.loop = loop{
		state:    stateRequesting,
		boundary: m.video.Duration(),
	}
	if next, ok := t.Next(target.Segment); ok {
		if rec, ok := m.store.Record(next); ok {
			m.loop.boundary = rec.Start()
			m.loop.boundaryIsNext = true
		}
	}
	m.loop.detach = m.video.OnSeeked(m.onSeeked)

	m.logf("tracking %s from %.3fs, boundary %.3fs", target.Track, m.video.CurrentTime(), m.loop.boundary)
	m.publish(notice.KindStarted, notice.ReasonNone, "Tracking in progress, cancel to stop")
	m.video.RequestSeek(m.video.CurrentTime() + m.step)
	return nil
}

// discardAfter deletes the boxes an earlier pass wrote after the anchor box
// and pulls the segment end back to the anchor. The track is only changed
// once the store has accepted the delete.
func (m *Manager) discardAfter(t *tracks.Track, target Target) error {
	stale := t.After(target.Segment, target.Box)
	if len(stale) == 0 {
		return nil
	}
	if err := m.store.DeleteRecords(m.vid, stale); err != nil {
		return fmt.Errorf("discard previous pass: %w", err)
	}
	// usually a no-op: the delete handlers have already forgotten these
	t.TruncateAfter(target.Segment, target.Box)

	seg, ok := m.store.Record(target.Segment)
	if !ok {
		return fmt.Errorf("segment %s is gone", target.Segment)
	}
	end := m.round(math.Max(target.At, seg.Start()+m.step-m.eps))
	if err := m.store.UpdateTimeBound(m.vid, target.Segment, 1, end); err != nil {
		return fmt.Errorf("trim segment %s: %w", target.Segment, err)
	}
	m.logf("discarded %d boxes after %s, segment %s now ends at %.3fs", len(stale), target.Box, target.Segment, end)
	return nil
}

// Cancel stops tracking. The seek already in flight, if any, completes and
// then ends the loop.
func (m *Manager) Cancel() {
	m.session.Cancel()
}

// onSeeked advances the loop by one frame.
func (m *Manager) onSeeked() {
	if m.loop.state != stateRequesting {
		return
	}
	if !m.session.Armed() {
		m.stop(idleToReason(m.session.IdleReason()), nil)
		return
	}

	now := m.video.CurrentTime()
	started := m.clock.Now()
	frame, err := m.video.DrawCurrentFrame(m.scale)
	if err != nil {
		m.stop(notice.ReasonError, fmt.Errorf("draw frame at %.3fs: %w", now, err))
		return
	}

	continuous := m.session.Failures() == 0
	region, ok, err := m.session.Step(frame)
	if err != nil {
		m.stop(notice.ReasonError, fmt.Errorf("step at %.3fs: %w", now, err))
		return
	}
	if ok {
		if err := m.record(now, region, continuous); err != nil {
			m.stop(notice.ReasonError, fmt.Errorf("record box at %.3fs: %w", now, err))
			return
		}
	}
	m.loop.steps++
	m.loop.elapsed += m.clock.Since(started)

	if !m.session.Armed() {
		m.stop(idleToReason(m.session.IdleReason()), nil)
		return
	}
	if now+m.step+m.eps >= m.loop.boundary {
		if m.loop.boundaryIsNext {
			m.stop(notice.ReasonBoundary, nil)
		} else {
			m.stop(notice.ReasonEndOfMedia, nil)
		}
		return
	}
	m.video.RequestSeek(now + m.step)
}

// record writes the box found at time now. A success straight after
// another extends the active segment to now; after a gap it opens a new
// segment and moves the session onto it.
func (m *Manager) record(now float64, region annotation.Region, continuous bool) error {
	target := m.session.Target()
	t, ok := m.tracks[target.Track]
	if !ok {
		return fmt.Errorf("track %s is gone", target.Track)
	}
	at := m.round(now)
	attrs := map[string]string{m.attr: target.Track}
	link := annotation.Linkage{Root: target.Track, Segment: target.Segment}

	id, err := m.store.AddRecord(m.vid, []float64{at}, annotation.ShapeRect, region.Scale(1/m.scale), attrs, link)
	if err != nil {
		return err
	}
	t.Add(id, target.Segment)
	m.loop.boxes++

	if continuous {
		if err := m.store.UpdateTimeBound(m.vid, target.Segment, 1, at); err != nil {
			return err
		}
	} else {
		seg, ok := m.store.Record(target.Segment)
		if !ok {
			return fmt.Errorf("segment %s is gone", target.Segment)
		}
		z := []float64{at, m.round(now + m.step)}
		m.placing = true
		newSeg, err := m.store.AddRecord(m.vid, z, annotation.ShapeNone, annotation.Region{}, seg.Attributes, annotation.Linkage{Root: target.Track})
		m.placing = false
		if err != nil {
			return err
		}
		t.SplitAt(id, target.Segment, newSeg)
		if err := m.relink(t, newSeg); err != nil {
			return err
		}
		m.keepSorted(t)
		m.session.Retarget(newSeg, id, now)
		m.logf("target reacquired at %.3fs, new segment %s", at, newSeg)
	}
	m.session.Succeeded(now)
	return nil
}

// stop ends the loop, returns playback to the last successful frame and
// reports why.
func (m *Manager) stop(reason notice.Reason, err error) {
	if m.loop.detach != nil {
		m.loop.detach()
	}
	last := m.session.LastSuccess()
	m.session.Reset()
	summary := m.loop
	m.loop = loop{}

	if summary.steps > 0 {
		m.logf("stopped (%s) after %d steps, %d boxes, %v per step", reason, summary.steps, summary.boxes, summary.elapsed/time.Duration(summary.steps))
	} else {
		m.logf("stopped (%s) before the first step", reason)
	}
	if last >= 0 {
		m.video.RequestSeek(last)
	}

	switch reason {
	case notice.ReasonEndOfMedia:
		m.publish(notice.KindStopped, reason, "Reached end of video. Use timeline to seek to point of interest")
	case notice.ReasonError:
		m.logf("tracking error: %v", err)
		m.publish(notice.KindStopped, reason, "Tracking stopped: %v", err)
	default:
		m.publish(notice.KindStopped, reason, "Tracking stopped. Draw / Update box to start / resume tracking")
	}
}

func idleToReason(r IdleReason) notice.Reason {
	if r == IdleFailureThreshold {
		return notice.ReasonFailureThreshold
	}
	return notice.ReasonCancelled
}
