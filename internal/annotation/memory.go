package annotation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It is safe for concurrent use; events
// are emitted after the store lock is released so listeners may call back
// into the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   map[string][]string // vid -> ids in insertion order

	bus   bus
	newID func() string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store that assigns random UUIDs to new
// records.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		order:   make(map[string][]string),
		newID:   uuid.NewString,
	}
}

// WithIDGenerator replaces the id generator, typically with a deterministic
// sequence in tests.
func (s *MemoryStore) WithIDGenerator(fn func() string) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newID = fn
	return s
}

// Subscribe implements Store.
func (s *MemoryStore) Subscribe(kind EventKind, listenerID string, fn Listener, filter Filter) {
	s.bus.subscribe(kind, listenerID, fn, filter)
}

// ClearEvents implements Store.
func (s *MemoryStore) ClearEvents(listenerID string) {
	s.bus.clear(listenerID)
}

// Listeners returns the number of active subscriptions.
func (s *MemoryStore) Listeners() int {
	return s.bus.listeners()
}

// AddRecord implements Store.
func (s *MemoryStore) AddRecord(vid string, z []float64, shape Shape, region Region, attributes map[string]string, link Linkage) (string, error) {
	if vid == "" {
		return "", fmt.Errorf("%w: empty video id", ErrInvalidRecord)
	}
	if len(z) == 0 {
		return "", fmt.Errorf("%w: record needs at least one time coordinate", ErrInvalidRecord)
	}
	r := Record{
		VID:        vid,
		Z:          z,
		Shape:      shape,
		Region:     region,
		Attributes: attributes,
		Root:       link.Root,
		Segment:    link.Segment,
	}.Clone()

	s.mu.Lock()
	r.ID = s.newID()
	s.insertLocked(&r)
	s.mu.Unlock()

	s.bus.emit(Event{Kind: EventAdd, VID: vid, ID: r.ID})
	return r.ID, nil
}

func (s *MemoryStore) insertLocked(r *Record) {
	if _, exists := s.records[r.ID]; !exists {
		s.order[r.VID] = append(s.order[r.VID], r.ID)
	}
	s.records[r.ID] = r
}

// lookupLocked returns the live record for id, checking it belongs to vid.
func (s *MemoryStore) lookupLocked(vid, id string) (*Record, error) {
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.VID != vid {
		return nil, fmt.Errorf("%w: %s is in %s, not %s", ErrWrongVideo, id, r.VID, vid)
	}
	return r, nil
}

// UpdateAttribute implements Store.
func (s *MemoryStore) UpdateAttribute(vid, id, attrID, value string) error {
	s.mu.Lock()
	r, err := s.lookupLocked(vid, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if r.Attributes == nil {
		r.Attributes = make(map[string]string)
	}
	r.Attributes[attrID] = value
	s.mu.Unlock()

	s.bus.emit(Event{Kind: EventUpdate, VID: vid, ID: id})
	return nil
}

// UpdateTimeBound implements Store.
func (s *MemoryStore) UpdateTimeBound(vid, id string, index int, value float64) error {
	s.mu.Lock()
	r, err := s.lookupLocked(vid, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if index < 0 || index >= len(r.Z) {
		s.mu.Unlock()
		return fmt.Errorf("%w: time index %d out of range for %s", ErrInvalidRecord, index, id)
	}
	r.Z[index] = value
	s.mu.Unlock()

	s.bus.emit(Event{Kind: EventUpdate, VID: vid, ID: id})
	return nil
}

// UpdateBox implements Store.
func (s *MemoryStore) UpdateBox(vid, id string, t float64, region Region) error {
	s.mu.Lock()
	r, err := s.lookupLocked(vid, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !r.IsBox() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is not a box", ErrInvalidRecord, id)
	}
	r.Z[0] = t
	r.Region = region
	s.mu.Unlock()

	s.bus.emit(Event{Kind: EventUpdate, VID: vid, ID: id})
	return nil
}

// SetLinkage implements Store.
func (s *MemoryStore) SetLinkage(id string, link Linkage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.Root = link.Root
	r.Segment = link.Segment
	return nil
}

// DeleteRecords implements Store. A single deleted record is reported as
// EventDelete, several as EventDeleteBulk. Nothing is emitted when no id
// matched.
func (s *MemoryStore) DeleteRecords(vid string, ids []string) error {
	s.mu.Lock()
	deleted := s.deleteLocked(vid, ids)
	s.mu.Unlock()

	switch len(deleted) {
	case 0:
		return nil
	case 1:
		s.bus.emit(Event{Kind: EventDelete, VID: vid, ID: deleted[0].ID, Records: deleted})
	default:
		s.bus.emit(Event{Kind: EventDeleteBulk, VID: vid, IDs: recordIDs(deleted), Records: deleted})
	}
	return nil
}

// DeleteAllSegments implements Store.
func (s *MemoryStore) DeleteAllSegments(vid string) error {
	s.mu.Lock()
	var ids []string
	for _, id := range s.order[vid] {
		if s.records[id].IsSegment() {
			ids = append(ids, id)
		}
	}
	deleted := s.deleteLocked(vid, ids)
	s.mu.Unlock()

	s.bus.emit(Event{Kind: EventDeleteAll, VID: vid, IDs: recordIDs(deleted), Records: deleted})
	return nil
}

func (s *MemoryStore) deleteLocked(vid string, ids []string) []Record {
	gone := make(map[string]bool, len(ids))
	var deleted []Record
	for _, id := range ids {
		r, ok := s.records[id]
		if !ok || r.VID != vid || gone[id] {
			continue
		}
		deleted = append(deleted, r.Clone())
		delete(s.records, id)
		gone[id] = true
	}
	if len(deleted) == 0 {
		return nil
	}
	kept := s.order[vid][:0]
	for _, id := range s.order[vid] {
		if !gone[id] {
			kept = append(kept, id)
		}
	}
	s.order[vid] = kept
	return deleted
}

func recordIDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// Record implements Store.
func (s *MemoryStore) Record(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// Records implements Store.
func (s *MemoryStore) Records(vid string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order[vid]))
	for _, id := range s.order[vid] {
		out = append(out, s.records[id].Clone())
	}
	return out
}

// Videos returns the ids of every video holding at least one record, in
// lexical order.
func (s *MemoryStore) Videos() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var vids []string
	for vid, ids := range s.order {
		if len(ids) > 0 {
			vids = append(vids, vid)
		}
	}
	sort.Strings(vids)
	return vids
}

// Load inserts records as a bulk import without emitting events. Records
// without an id are assigned one. Existing records with the same id are
// replaced.
func (s *MemoryStore) Load(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if rec.VID == "" || len(rec.Z) == 0 {
			return fmt.Errorf("%w: record %q", ErrInvalidRecord, rec.ID)
		}
		r := rec.Clone()
		if r.ID == "" {
			r.ID = s.newID()
		}
		s.insertLocked(&r)
	}
	return nil
}

// Restore re-inserts previously deleted records, keeping their ids and
// linkage, and emits EventAdd for each one in order. It is the undo path
// for deletions.
func (s *MemoryStore) Restore(records []Record) error {
	for _, rec := range records {
		if rec.ID == "" || rec.VID == "" || len(rec.Z) == 0 {
			return fmt.Errorf("%w: cannot restore record %q", ErrInvalidRecord, rec.ID)
		}
		r := rec.Clone()
		s.mu.Lock()
		s.insertLocked(&r)
		s.mu.Unlock()
		s.bus.emit(Event{Kind: EventAdd, VID: r.VID, ID: r.ID})
	}
	return nil
}
