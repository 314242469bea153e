package annotation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Shape identifies the spatial extent of a record.
type Shape int

const (
	ShapeNone  Shape = 0 // temporal-only record (no region)
	ShapePoint Shape = 1
	ShapeRect  Shape = 2
)

func (s Shape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapePoint:
		return "point"
	case ShapeRect:
		return "rect"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ReadonlyAttribute marks temporal segments owned by the tracking core.
const ReadonlyAttribute = "readonly"

// Region is an axis-aligned rectangle in pixel coordinates.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Scale returns the region with every coordinate multiplied by f.
func (r Region) Scale(f float64) Region {
	return Region{X: r.X * f, Y: r.Y * f, Width: r.Width * f, Height: r.Height * f}
}

// Floor returns the region with every coordinate rounded down.
func (r Region) Floor() Region {
	return Region{X: math.Floor(r.X), Y: math.Floor(r.Y), Width: math.Floor(r.Width), Height: math.Floor(r.Height)}
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Linkage ties a record to a track. Root is the id of the track's root box
// and Segment the id of the temporal segment the box belongs to.
type Linkage struct {
	Root    string `json:"root,omitempty"`
	Segment string `json:"segment,omitempty"`
}

// Record is a single annotation. A box has Shape ShapeRect and exactly one
// time coordinate; a temporal segment has Shape ShapeNone and two time
// coordinates [start, end].
type Record struct {
	ID         string            `json:"id"`
	VID        string            `json:"vid"`
	Z          []float64         `json:"z"`
	Shape      Shape             `json:"shape"`
	Region     Region            `json:"region"`
	Attributes map[string]string `json:"av,omitempty"`
	Root       string            `json:"root,omitempty"`
	Segment    string            `json:"segment,omitempty"`
}

// IsBox reports whether r is a single-frame rectangle.
func (r Record) IsBox() bool {
	return r.Shape == ShapeRect && len(r.Z) == 1
}

// IsSegment reports whether r is a temporal segment.
func (r Record) IsSegment() bool {
	return r.Shape == ShapeNone && len(r.Z) == 2
}

// IsTrackSegment reports whether r is a temporal segment owned by a track.
func (r Record) IsTrackSegment() bool {
	return r.IsSegment() && r.Attributes[ReadonlyAttribute] == "true"
}

// Start returns the first time coordinate, or NaN for a record without one.
func (r Record) Start() float64 {
	if len(r.Z) == 0 {
		return math.NaN()
	}
	return r.Z[0]
}

// End returns the last time coordinate, or NaN for a record without one.
func (r Record) End() float64 {
	if len(r.Z) == 0 {
		return math.NaN()
	}
	return r.Z[len(r.Z)-1]
}

// TrackRoot returns the id of the track r belongs to. Root boxes carry no
// Root reference and are their own track root.
func (r Record) TrackRoot() string {
	if r.Root != "" {
		return r.Root
	}
	if r.IsBox() {
		return r.ID
	}
	return ""
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	if r.Z != nil {
		c.Z = append([]float64(nil), r.Z...)
	}
	if r.Attributes != nil {
		c.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}

// UnmarshalJSON accepts time coordinates encoded either as numbers or as
// decimal strings, as produced by older project files.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var aux struct {
		plain
		Z []Time `json:"z"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux.plain)
	r.Z = nil
	if aux.Z != nil {
		r.Z = make([]float64, len(aux.Z))
		for i, t := range aux.Z {
			r.Z[i] = float64(t)
		}
	}
	return nil
}

// Time is a position in a video in seconds. Its JSON form may be a number
// or a string holding a decimal number.
type Time float64

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*t = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		v, err := ParseTime(str)
		if err != nil {
			return err
		}
		*t = Time(v)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid time %s: %w", s, err)
	}
	*t = Time(v)
	return nil
}

// ParseTime parses a text-encoded time in seconds.
func ParseTime(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return v, nil
}

// RoundTime rounds t to the given number of decimal places.
func RoundTime(t float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(t*p) / p
}
