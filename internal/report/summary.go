// Package report summarises the tracks of a video and renders them as
// charts for the admin pages and the command line.
package report

import (
	"math"
	"sort"

	"github.com/banshee-data/boxtrack/internal/annotation"
	"github.com/banshee-data/boxtrack/internal/monitoring"
	"github.com/banshee-data/boxtrack/internal/tracks"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var logf = monitoring.Component("report")

// Lookup resolves record ids.
type Lookup interface {
	Record(id string) (annotation.Record, bool)
}

// Span is one temporal segment of a track.
type Span struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Boxes int     `json:"boxes"`
}

// Length returns the duration of the span in seconds.
func (s Span) Length() float64 { return s.End - s.Start }

// TrackSummary describes one track.
type TrackSummary struct {
	Root     string  `json:"root"`
	Segments int     `json:"segments"`
	Boxes    int     `json:"boxes"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	// Covered is the length of the union of the segment spans; segments
	// may overlap after manual edits.
	Covered       float64 `json:"covered_seconds"`
	MeanSegment   float64 `json:"mean_segment_seconds"`
	StdDevSegment float64 `json:"stddev_segment_seconds"`
	Spans         []Span  `json:"spans"`
}

// Summarise returns a summary of every track of set, ordered by root id.
// Segments missing from the store are skipped.
func Summarise(set tracks.Set, store Lookup) []TrackSummary {
	out := make([]TrackSummary, 0, len(set))
	for _, root := range set.Roots() {
		out = append(out, summariseTrack(root, set[root], store))
	}
	return out
}

func summariseTrack(root string, t *tracks.Track, store Lookup) TrackSummary {
	s := TrackSummary{Root: root}
	var lengths []float64
	for _, id := range t.Order() {
		rec, ok := store.Record(id)
		if !ok || !rec.IsSegment() {
			continue
		}
		boxes, _ := t.Segment(id)
		span := Span{ID: id, Start: rec.Start(), End: rec.End(), Boxes: len(boxes)}
		s.Spans = append(s.Spans, span)
		s.Boxes += len(boxes)
		lengths = append(lengths, span.Length())
	}
	s.Segments = len(s.Spans)
	if s.Segments == 0 {
		return s
	}

	starts := make([]float64, len(s.Spans))
	ends := make([]float64, len(s.Spans))
	for i, sp := range s.Spans {
		starts[i], ends[i] = sp.Start, sp.End
	}
	s.Start = floats.Min(starts)
	s.End = floats.Max(ends)
	s.Covered = union(s.Spans)
	s.MeanSegment = stat.Mean(lengths, nil)
	if len(lengths) > 1 {
		s.StdDevSegment = stat.StdDev(lengths, nil)
	}
	return s
}

// union returns the total length covered by spans.
func union(spans []Span) float64 {
	sorted := append([]Span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var parts []float64
	cur := sorted[0]
	for _, sp := range sorted[1:] {
		if sp.Start <= cur.End {
			cur.End = math.Max(cur.End, sp.End)
			continue
		}
		parts = append(parts, cur.Length())
		cur = sp
	}
	parts = append(parts, cur.Length())
	return floats.Sum(parts)
}
