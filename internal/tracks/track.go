package tracks

import (
	"math"
	"sort"
)

// Track maps one tracked object onto its temporal segments.
type Track struct {
	order    []string
	segments map[string][]string
}

// New returns a track with an optional first segment and root box.
func New(segment, box string) *Track {
	t := &Track{segments: make(map[string][]string)}
	if segment != "" {
		t.AddSegment(segment)
		if box != "" {
			t.Add(box, segment)
		}
	}
	return t
}

// Order returns a copy of the segment ids in track order.
func (t *Track) Order() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of segments.
func (t *Track) Len() int {
	return len(t.order)
}

// Segment returns a copy of the box ids of a segment.
func (t *Track) Segment(segment string) ([]string, bool) {
	boxes, ok := t.segments[segment]
	if !ok {
		return nil, false
	}
	return append([]string(nil), boxes...), true
}

// HasSegment reports whether the track owns segment.
func (t *Track) HasSegment(segment string) bool {
	_, ok := t.segments[segment]
	return ok
}

// First returns the first box of a segment.
func (t *Track) First(segment string) (string, bool) {
	boxes := t.segments[segment]
	if len(boxes) == 0 {
		return "", false
	}
	return boxes[0], true
}

// SegmentOf returns the segment holding box.
func (t *Track) SegmentOf(box string) (string, bool) {
	for _, seg := range t.order {
		if indexOf(t.segments[seg], box) >= 0 {
			return seg, true
		}
	}
	return "", false
}

// Next returns the segment following segment in track order.
func (t *Track) Next(segment string) (string, bool) {
	i := indexOf(t.order, segment)
	if i < 0 || i+1 >= len(t.order) {
		return "", false
	}
	return t.order[i+1], true
}

// AddSegment appends an empty segment. Adding a known segment is a no-op.
func (t *Track) AddSegment(segment string) {
	if _, ok := t.segments[segment]; ok {
		return
	}
	t.segments[segment] = nil
	t.order = append(t.order, segment)
}

// Add appends box to segment. It reports false when the segment is unknown
// or the box is already listed there.
func (t *Track) Add(box, segment string) bool {
	boxes, ok := t.segments[segment]
	if !ok || indexOf(boxes, box) >= 0 {
		return false
	}
	t.segments[segment] = append(boxes, box)
	return true
}

// Insert adds box to segment at its chronological position according to
// key, after any boxes with an equal time. It reports false when the
// segment is unknown or the box is already listed there.
func (t *Track) Insert(box, segment string, key TimeKey) bool {
	boxes, ok := t.segments[segment]
	if !ok || indexOf(boxes, box) >= 0 {
		return false
	}
	at := resolve(key, box)
	i := sort.Search(len(boxes), func(i int) bool {
		return resolve(key, boxes[i]) > at
	})
	boxes = append(boxes, "")
	copy(boxes[i+1:], boxes[i:])
	boxes[i] = box
	t.segments[segment] = boxes
	return true
}

// DeleteSegment removes a segment and returns the boxes it addressed, which
// the caller is expected to delete from the store.
func (t *Track) DeleteSegment(segment string) []string {
	boxes, ok := t.segments[segment]
	if !ok {
		return nil
	}
	delete(t.segments, segment)
	t.order = removeAt(t.order, indexOf(t.order, segment))
	return boxes
}

// Delete removes box from segment and returns it. It returns false when the
// segment is gone or does not list the box.
func (t *Track) Delete(box, segment string) (string, bool) {
	boxes, ok := t.segments[segment]
	if !ok {
		return "", false
	}
	i := indexOf(boxes, box)
	if i < 0 {
		return "", false
	}
	t.segments[segment] = removeAt(boxes, i)
	return box, true
}

// Truncate keeps only the first box of segment and returns the removed
// suffix.
func (t *Track) Truncate(segment string) []string {
	first, ok := t.First(segment)
	if !ok {
		return nil
	}
	return t.TruncateAfter(segment, first)
}

// After returns the boxes listed in segment after box, without changing
// the track. It returns nil if box is not listed.
func (t *Track) After(segment, box string) []string {
	boxes := t.segments[segment]
	i := indexOf(boxes, box)
	if i < 0 || i+1 >= len(boxes) {
		return nil
	}
	return append([]string(nil), boxes[i+1:]...)
}

// TruncateAfter keeps the boxes of segment up to and including box and
// returns the removed suffix. Nothing is removed if box is not listed.
func (t *Track) TruncateAfter(segment, box string) []string {
	removed := t.After(segment, box)
	if len(removed) == 0 {
		return nil
	}
	boxes := t.segments[segment]
	t.segments[segment] = append([]string(nil), boxes[:len(boxes)-len(removed)]...)
	return removed
}

// SplitAt moves box and every box after it in oldSegment into newSegment,
// which is inserted into the order immediately after oldSegment. If box is
// not listed in oldSegment, newSegment is inserted empty and oldSegment is
// left unchanged. It reports false when oldSegment is unknown or
// newSegment already exists.
func (t *Track) SplitAt(box, oldSegment, newSegment string) bool {
	boxes, ok := t.segments[oldSegment]
	if !ok {
		return false
	}
	if _, exists := t.segments[newSegment]; exists {
		return false
	}

	pos := indexOf(t.order, oldSegment) + 1
	t.order = append(t.order, "")
	copy(t.order[pos+1:], t.order[pos:])
	t.order[pos] = newSegment

	i := indexOf(boxes, box)
	if i < 0 {
		t.segments[newSegment] = nil
		return true
	}
	t.segments[oldSegment] = append([]string(nil), boxes[:i]...)
	t.segments[newSegment] = append([]string(nil), boxes[i:]...)
	return true
}

// TimeKey returns the chronological key of a record id: a segment's start
// time or a box's time. ok is false for ids the caller cannot resolve.
type TimeKey func(id string) (t float64, ok bool)

// Sort re-sorts the segment order and every box list by key. The sort is
// stable; ids the key cannot resolve, or whose time is NaN, sort last.
func (t *Track) Sort(key TimeKey) {
	sortIDs(t.order, key)
	for _, boxes := range t.segments {
		sortIDs(boxes, key)
	}
}

// Sorted reports whether the segment order and every box list are in
// chronological order according to key.
func (t *Track) Sorted(key TimeKey) bool {
	if !idsSorted(t.order, key) {
		return false
	}
	for _, boxes := range t.segments {
		if !idsSorted(boxes, key) {
			return false
		}
	}
	return true
}

func sortIDs(ids []string, key TimeKey) {
	keys := make(map[string]float64, len(ids))
	for _, id := range ids {
		keys[id] = resolve(key, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return keys[ids[i]] < keys[ids[j]]
	})
}

func idsSorted(ids []string, key TimeKey) bool {
	for i := 1; i < len(ids); i++ {
		if resolve(key, ids[i]) < resolve(key, ids[i-1]) {
			return false
		}
	}
	return true
}

func resolve(key TimeKey, id string) float64 {
	v, ok := key(id)
	if !ok || math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func removeAt(ids []string, i int) []string {
	if i < 0 {
		return ids
	}
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:i]...)
	return append(out, ids[i+1:]...)
}
