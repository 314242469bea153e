package annotation

import "errors"

var (
	// ErrNotFound is returned when a record id is unknown to the store.
	ErrNotFound = errors.New("annotation: record not found")
	// ErrWrongVideo is returned when a record exists under another video.
	ErrWrongVideo = errors.New("annotation: record belongs to another video")
	// ErrInvalidRecord is returned for records that fail validation.
	ErrInvalidRecord = errors.New("annotation: invalid record")
)

// Store is the annotation store consumed by the tracking core. Every
// mutating call emits the matching event before it returns, except
// SetLinkage which updates bookkeeping fields silently.
type Store interface {
	// Subscribe registers fn for events of the given kind under listenerID.
	Subscribe(kind EventKind, listenerID string, fn Listener, filter Filter)
	// ClearEvents removes every subscription registered under listenerID.
	ClearEvents(listenerID string)

	// AddRecord creates a record and returns its id.
	AddRecord(vid string, z []float64, shape Shape, region Region, attributes map[string]string, link Linkage) (string, error)
	// UpdateAttribute sets one attribute value on a record.
	UpdateAttribute(vid, id, attrID, value string) error
	// UpdateTimeBound replaces the time coordinate at index.
	UpdateTimeBound(vid, id string, index int, value float64) error
	// UpdateBox moves a box to time t and replaces its region.
	UpdateBox(vid, id string, t float64, region Region) error
	// SetLinkage replaces the track linkage of a record without emitting
	// an event.
	SetLinkage(id string, link Linkage) error
	// DeleteRecords removes the given records. Unknown ids are skipped.
	DeleteRecords(vid string, ids []string) error
	// DeleteAllSegments removes every temporal segment of a video.
	DeleteAllSegments(vid string) error

	// Record returns a copy of the record with the given id.
	Record(id string) (Record, bool)
	// Records returns copies of every record of a video in insertion order.
	Records(vid string) []Record
}
