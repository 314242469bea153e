package tracks

import (
	"sort"

	"github.com/banshee-data/boxtrack/internal/annotation"
)

// Set holds every track of one video, keyed by root box id.
type Set map[string]*Track

// Build rebuilds the tracks of a video from its records: every track
// segment (a read-only temporal segment) is registered under its root, then
// every linked box is added to its segment, and finally each track is
// sorted chronologically.
func Build(records []annotation.Record) Set {
	set := make(Set)
	byID := make(map[string]annotation.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	for _, r := range records {
		if !r.IsTrackSegment() || r.Root == "" {
			continue
		}
		t, ok := set[r.Root]
		if !ok {
			t = New("", "")
			set[r.Root] = t
		}
		t.AddSegment(r.ID)
	}

	for _, r := range records {
		if r.Segment == "" || !r.IsBox() {
			continue
		}
		t, ok := set[r.TrackRoot()]
		if !ok {
			continue
		}
		t.Add(r.ID, r.Segment)
	}

	key := KeyFromRecords(byID)
	for _, t := range set {
		t.Sort(key)
	}
	return set
}

// KeyFromRecords returns a TimeKey resolving ids against a record map.
func KeyFromRecords(records map[string]annotation.Record) TimeKey {
	return func(id string) (float64, bool) {
		r, ok := records[id]
		if !ok || len(r.Z) == 0 {
			return 0, false
		}
		return r.Z[0], true
	}
}

// KeyFromStore returns a TimeKey resolving ids with a store lookup.
func KeyFromStore(store interface {
	Record(id string) (annotation.Record, bool)
}) TimeKey {
	return func(id string) (float64, bool) {
		r, ok := store.Record(id)
		if !ok || len(r.Z) == 0 {
			return 0, false
		}
		return r.Z[0], true
	}
}

// Roots returns the root ids of every track in lexical order.
func (s Set) Roots() []string {
	roots := make([]string, 0, len(s))
	for root := range s {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// TrackOfSegment returns the root and track owning segment.
func (s Set) TrackOfSegment(segment string) (string, *Track, bool) {
	for root, t := range s {
		if t.HasSegment(segment) {
			return root, t, true
		}
	}
	return "", nil, false
}

// Locate returns the root and segment currently listing box.
func (s Set) Locate(box string) (root, segment string, ok bool) {
	for r, t := range s {
		if seg, found := t.SegmentOf(box); found {
			return r, seg, true
		}
	}
	return "", "", false
}
