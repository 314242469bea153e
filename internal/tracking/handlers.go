package tracking

import (
	"math"

	"github.com/banshee-data/boxtrack/internal/annotation"
	"github.com/banshee-data/boxtrack/internal/notice"
	"github.com/banshee-data/boxtrack/internal/tracks"
)

func (m *Manager) subscribe() {
	only := annotation.ForVideo(m.vid)
	m.store.Subscribe(annotation.EventAdd, m.listenerID, m.onAdd, only)
	m.store.Subscribe(annotation.EventUpdate, m.listenerID, m.onUpdate, only)
	m.store.Subscribe(annotation.EventDelete, m.listenerID, m.onDelete, only)
	m.store.Subscribe(annotation.EventDeleteBulk, m.listenerID, m.onBulkDelete, only)
	m.store.Subscribe(annotation.EventDeleteAll, m.listenerID, m.onBulkDelete, only)
}

// ---------------------------------------------------------------------------
// Additions
// ---------------------------------------------------------------------------

func (m *Manager) onAdd(e annotation.Event) {
	rec, ok := m.store.Record(e.ID)
	if !ok {
		return
	}
	switch {
	case rec.IsBox() && rec.Root == "" && rec.Segment == "":
		m.startTrack(rec)
	case rec.IsBox() && rec.Segment != "":
		m.linkBox(rec)
	case rec.IsTrackSegment() && rec.Root != "" && !m.placing:
		// a segment coming back from undo or an external import
		t, ok := m.tracks[rec.Root]
		if !ok {
			t = tracks.New("", "")
			m.tracks[rec.Root] = t
		}
		t.AddSegment(rec.ID)
		m.adoptBoxes(t, rec.ID)
		t.Sort(m.key)
	}
}

// adoptBoxes lists the boxes that name segment but arrived before it did,
// as happens when a cascade is undone in the order it was recorded.
func (m *Manager) adoptBoxes(t *tracks.Track, segment string) {
	for _, r := range m.store.Records(m.vid) {
		if !r.IsBox() || r.Segment != segment {
			continue
		}
		if _, listed := t.SegmentOf(r.ID); listed {
			continue
		}
		t.Insert(r.ID, segment, m.key)
	}
}

// startTrack gives a freshly drawn box its own track with one minimal
// segment, then tags the box with the track attribute. The resulting update
// event arms the session.
func (m *Manager) startTrack(box annotation.Record) {
	at := box.Start()
	z := []float64{m.round(at), m.round(at + m.step - m.eps)}
	attrs := map[string]string{
		m.attr:                       box.ID,
		annotation.ReadonlyAttribute: "true",
	}

	m.placing = true
	seg, err := m.store.AddRecord(m.vid, z, annotation.ShapeNone, annotation.Region{}, attrs, annotation.Linkage{Root: box.ID})
	m.placing = false
	if err != nil {
		m.logf("create segment for box %s: %v", box.ID, err)
		return
	}

	m.tracks[box.ID] = tracks.New(seg, box.ID)
	if err := m.store.SetLinkage(box.ID, annotation.Linkage{Segment: seg}); err != nil {
		m.logf("link box %s to segment %s: %v", box.ID, seg, err)
		return
	}
	if err := m.store.UpdateAttribute(m.vid, box.ID, m.attr, box.ID); err != nil {
		m.logf("tag box %s: %v", box.ID, err)
	}
}

// linkBox records a box that already names its segment.
func (m *Manager) linkBox(box annotation.Record) {
	t, ok := m.tracks[box.TrackRoot()]
	if !ok || !t.HasSegment(box.Segment) {
		m.logf("box %s names unknown segment %s of track %s", box.ID, box.Segment, box.TrackRoot())
		return
	}
	t.Insert(box.ID, box.Segment, m.key)
}

// ---------------------------------------------------------------------------
// Updates
// ---------------------------------------------------------------------------

func (m *Manager) onUpdate(e annotation.Event) {
	rec, ok := m.store.Record(e.ID)
	if !ok {
		return
	}
	switch {
	case rec.IsBox():
		m.boxEdited(rec)
	case rec.IsTrackSegment():
		if _, t, ok := m.tracks.TrackOfSegment(rec.ID); ok {
			m.keepSorted(t)
		}
	}
}

func (m *Manager) keepSorted(t *tracks.Track) {
	if !t.Sorted(m.key) {
		t.Sort(m.key)
	}
}

// boxEdited re-arms the session on an edited box. Moving the first box of
// a segment to a new time splits the segment there, so the edited box and
// everything after it start a new segment.
func (m *Manager) boxEdited(box annotation.Record) {
	if box.Segment == "" {
		return
	}
	root := box.TrackRoot()
	t, ok := m.tracks[root]
	if !ok || !t.HasSegment(box.Segment) {
		m.logf("edited box %s is not part of a known track", box.ID)
		return
	}
	seg, ok := m.store.Record(box.Segment)
	if !ok {
		m.logf("segment %s of box %s is missing", box.Segment, box.ID)
		return
	}

	frame, err := m.video.DrawCurrentFrame(m.scale)
	if err != nil {
		m.logf("draw frame for box %s: %v", box.ID, err)
		m.publish(notice.KindFailed, notice.ReasonError, "Could not read the current frame: %v", err)
		return
	}

	at := box.Start()
	target := Target{Track: root, Segment: box.Segment, Box: box.ID, At: at}
	if first, _ := t.First(box.Segment); first == box.ID && m.round(at) != m.round(seg.Start()) {
		newSeg, err := m.reanchor(t, box, seg)
		if err != nil {
			m.logf("split segment %s at box %s: %v", seg.ID, box.ID, err)
			return
		}
		target.Segment = newSeg
	} else {
		t.Sort(m.key)
	}

	roi := box.Region.Scale(m.scale).Floor()
	if err := m.session.Arm(frame, frame.Bounds().Dy(), roi, target); err != nil {
		m.logf("arm on box %s: %v", box.ID, err)
		m.publish(notice.KindFailed, notice.ReasonError, "Tracking could not be initialised: %v", err)
		return
	}
	m.publish(notice.KindArmed, notice.ReasonNone, "Tracking initialised. Start tracking to continue")
}

// reanchor ends seg one step before the box and moves the box and every
// box at or after its new time into a new segment starting there.
func (m *Manager) reanchor(t *tracks.Track, box, seg annotation.Record) (string, error) {
	at := box.Start()
	if err := m.store.UpdateTimeBound(m.vid, seg.ID, 1, m.round(at-m.step)); err != nil {
		return "", err
	}
	end := math.Max(seg.End(), at+m.step-m.eps)
	z := []float64{m.round(at), m.round(end)}

	m.placing = true
	newSeg, err := m.store.AddRecord(m.vid, z, annotation.ShapeNone, annotation.Region{}, seg.Attributes, annotation.Linkage{Root: seg.Root})
	m.placing = false
	if err != nil {
		return "", err
	}

	// the box list is split by time, so the box must first move to its
	// new position
	t.Sort(m.key)
	t.SplitAt(box.ID, seg.ID, newSeg)
	if err := m.relink(t, newSeg); err != nil {
		return "", err
	}
	t.Sort(m.key)
	return newSeg, nil
}

// relink points every box listed in segment back at it.
func (m *Manager) relink(t *tracks.Track, segment string) error {
	boxes, _ := t.Segment(segment)
	for _, id := range boxes {
		rec, ok := m.store.Record(id)
		if !ok {
			continue
		}
		if err := m.store.SetLinkage(id, annotation.Linkage{Root: rec.Root, Segment: segment}); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Deletions
// ---------------------------------------------------------------------------

func (m *Manager) onDelete(e annotation.Event) {
	rec, ok := e.Deleted(e.ID)
	if !ok {
		return
	}
	m.forget(rec)
}

func (m *Manager) onBulkDelete(e annotation.Event) {
	// boxes first, so a cascading segment delete finds only what is left
	for _, rec := range e.Records {
		if rec.IsBox() {
			m.forget(rec)
		}
	}
	for _, rec := range e.Records {
		if !rec.IsBox() {
			m.forget(rec)
		}
	}
}

func (m *Manager) forget(rec annotation.Record) {
	switch {
	case rec.IsBox() && rec.Segment != "":
		if t, ok := m.tracks[rec.TrackRoot()]; ok {
			t.Delete(rec.ID, rec.Segment)
		}
	case rec.IsTrackSegment():
		m.segmentDeleted(rec)
	}
}

// segmentDeleted deletes every box of a removed segment and drops the
// segment, and its track once empty.
func (m *Manager) segmentDeleted(seg annotation.Record) {
	root, t, ok := m.tracks.TrackOfSegment(seg.ID)
	if !ok {
		return
	}
	if m.session.Armed() && m.session.Target().Segment == seg.ID {
		m.session.Reset()
	}

	boxes, _ := t.Segment(seg.ID)
	if len(boxes) > 0 {
		if err := m.store.DeleteRecords(m.vid, boxes); err != nil {
			m.logf("delete boxes of segment %s: %v", seg.ID, err)
		}
	}
	t.DeleteSegment(seg.ID)
	if t.Len() == 0 {
		delete(m.tracks, root)
	}
}
