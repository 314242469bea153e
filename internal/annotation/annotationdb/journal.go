package annotationdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/boxtrack/internal/annotation"
	"github.com/banshee-data/boxtrack/internal/timeutil"
)

// JournalListenerID is the listener id a Journal subscribes under.
const JournalListenerID = "AnnotationJournal"

var journalKinds = []annotation.EventKind{
	annotation.EventAdd,
	annotation.EventUpdate,
	annotation.EventDelete,
	annotation.EventDeleteBulk,
	annotation.EventDeleteAll,
}

// EventRow is one journaled store event.
type EventRow struct {
	ID         int64                `json:"id"`
	VID        string               `json:"vid"`
	Kind       annotation.EventKind `json:"kind"`
	RecordID   string               `json:"record_id,omitempty"`
	RecordIDs  []string             `json:"record_ids,omitempty"`
	RecordedAt time.Time            `json:"recorded_at"`
}

// Journal appends every event of a store to the annotation_events table.
// Write failures are logged and do not reach the store's caller.
type Journal struct {
	db    *DB
	store annotation.Store
	clock timeutil.Clock
}

// NewJournal subscribes to every event kind of store. A nil clock uses the
// wall clock.
func NewJournal(db *DB, store annotation.Store, clock timeutil.Clock) *Journal {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	j := &Journal{db: db, store: store, clock: clock}
	for _, kind := range journalKinds {
		store.Subscribe(kind, JournalListenerID, j.append, nil)
	}
	return j
}

func (j *Journal) append(e annotation.Event) {
	if err := j.db.AppendEvent(e, j.clock.Now()); err != nil {
		logf("journal %s on %s: %v", e.Kind, e.VID, err)
	}
}

// Close stops journaling.
func (j *Journal) Close() {
	j.store.ClearEvents(JournalListenerID)
}

// AppendEvent writes one event row.
func (db *DB) AppendEvent(e annotation.Event, at time.Time) error {
	var ids interface{}
	if len(e.IDs) > 0 {
		b, err := json.Marshal(e.IDs)
		if err != nil {
			return err
		}
		ids = string(b)
	}
	_, err := db.Exec(`
		INSERT INTO annotation_events (vid, kind, record_id, record_ids, recorded_at_ns)
		VALUES (?, ?, ?, ?, ?)`,
		e.VID, string(e.Kind), nullString(e.ID), ids, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Events returns the journaled events of vid, oldest first.
func (db *DB) Events(vid string) ([]EventRow, error) {
	rows, err := db.Query(`
		SELECT event_id, kind, record_id, record_ids, recorded_at_ns
		FROM annotation_events
		WHERE vid = ?
		ORDER BY event_id`, vid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var (
			ev       EventRow
			kind     string
			id, ids  sql.NullString
			recorded int64
		)
		if err := rows.Scan(&ev.ID, &kind, &id, &ids, &recorded); err != nil {
			return nil, err
		}
		if ids.Valid {
			if err := json.Unmarshal([]byte(ids.String), &ev.RecordIDs); err != nil {
				return nil, fmt.Errorf("failed to decode ids of event %d: %w", ev.ID, err)
			}
		}
		ev.VID = vid
		ev.Kind = annotation.EventKind(kind)
		ev.RecordID = id.String
		ev.RecordedAt = time.Unix(0, recorded).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}
