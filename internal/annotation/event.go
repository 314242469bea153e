package annotation

import "sync"

// EventKind identifies a class of store mutation.
type EventKind string

const (
	EventAdd        EventKind = "metadata_add"
	EventUpdate     EventKind = "metadata_update"
	EventDelete     EventKind = "metadata_delete"
	EventDeleteBulk EventKind = "metadata_delete_bulk"
	EventDeleteAll  EventKind = "metadata_delete_all"
)

// Event describes one store mutation. ID is set for single-record events;
// IDs for bulk events. Records carries snapshots of deleted records, taken
// before removal, so listeners can still see their linkage.
type Event struct {
	Kind    EventKind
	VID     string
	ID      string
	IDs     []string
	Records []Record
}

// Deleted returns the snapshot of the deleted record with the given id.
func (e Event) Deleted(id string) (Record, bool) {
	for _, r := range e.Records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Listener receives store events.
type Listener func(Event)

// Filter selects the events delivered to a listener. A nil Filter accepts
// every event.
type Filter func(Event) bool

// ForVideo returns a Filter accepting only events for vid.
func ForVideo(vid string) Filter {
	return func(e Event) bool { return e.VID == vid }
}

type subscription struct {
	kind       EventKind
	listenerID string
	fn         Listener
	filter     Filter
}

// bus is a synchronous publish/subscribe registry. Listeners run on the
// emitting goroutine in subscription order.
type bus struct {
	mu   sync.Mutex
	subs []subscription
}

func (b *bus) subscribe(kind EventKind, listenerID string, fn Listener, filter Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{kind: kind, listenerID: listenerID, fn: fn, filter: filter})
}

func (b *bus) clear(listenerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.subs[:0]
	for _, s := range b.subs {
		if s.listenerID != listenerID {
			kept = append(kept, s)
		}
	}
	// drop references held past the new length
	for i := len(kept); i < len(b.subs); i++ {
		b.subs[i] = subscription{}
	}
	b.subs = kept
}

func (b *bus) emit(e Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if s.kind != e.Kind {
			continue
		}
		if s.filter != nil && !s.filter(e) {
			continue
		}
		s.fn(e)
	}
}

func (b *bus) listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
