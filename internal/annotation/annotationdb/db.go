// Package annotationdb persists annotation records and the store's event
// history in SQLite.
package annotationdb

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/boxtrack/internal/annotation"
	"github.com/banshee-data/boxtrack/internal/httputil"
	"github.com/banshee-data/boxtrack/internal/monitoring"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

var logf = monitoring.Component("annotationdb")

type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases coherent
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SaveVideo replaces every stored record of vid with records, in one
// transaction. Insertion order is kept.
func (db *DB) SaveVideo(vid string, records []annotation.Record) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM annotation_records WHERE vid = ?`, vid); err != nil {
		return fmt.Errorf("failed to clear records of %s: %w", vid, err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO annotation_records (
			record_id, vid, seq, z_json, shape, x, y, width, height, av_json, root_id, segment_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		if r.VID != vid {
			return fmt.Errorf("%w: record %s", annotation.ErrWrongVideo, r.ID)
		}
		z, err := json.Marshal(r.Z)
		if err != nil {
			return fmt.Errorf("failed to encode z of %s: %w", r.ID, err)
		}
		var av []byte
		if len(r.Attributes) > 0 {
			if av, err = json.Marshal(r.Attributes); err != nil {
				return fmt.Errorf("failed to encode attributes of %s: %w", r.ID, err)
			}
		}
		if _, err := stmt.Exec(
			r.ID, vid, i, string(z), int(r.Shape),
			r.Region.X, r.Region.Y, r.Region.Width, r.Region.Height,
			nullString(string(av)), nullString(r.Root), nullString(r.Segment),
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logf("saved %d records of video %s", len(records), vid)
	return nil
}

// LoadVideo returns the stored records of vid in the order they were saved.
func (db *DB) LoadVideo(vid string) ([]annotation.Record, error) {
	rows, err := db.Query(`
		SELECT record_id, z_json, shape, x, y, width, height, av_json, root_id, segment_id
		FROM annotation_records
		WHERE vid = ?
		ORDER BY seq`, vid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []annotation.Record
	for rows.Next() {
		var (
			r                 annotation.Record
			z                 string
			shape             int
			av, root, segment sql.NullString
		)
		if err := rows.Scan(&r.ID, &z, &shape, &r.Region.X, &r.Region.Y, &r.Region.Width, &r.Region.Height, &av, &root, &segment); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(z), &r.Z); err != nil {
			return nil, fmt.Errorf("failed to decode z of %s: %w", r.ID, err)
		}
		if av.Valid {
			if err := json.Unmarshal([]byte(av.String), &r.Attributes); err != nil {
				return nil, fmt.Errorf("failed to decode attributes of %s: %w", r.ID, err)
			}
		}
		r.VID = vid
		r.Shape = annotation.Shape(shape)
		r.Root = root.String
		r.Segment = segment.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Videos lists the ids of every video with stored records.
func (db *DB) Videos() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT vid FROM annotation_records ORDER BY vid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vids []string
	for rows.Next() {
		var vid string
		if err := rows.Scan(&vid); err != nil {
			return nil, err
		}
		vids = append(vids, vid)
	}
	return vids, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Annotation DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("annotation-events", "Journaled annotation events of ?vid=", func(w http.ResponseWriter, r *http.Request) {
		vid := r.URL.Query().Get("vid")
		if vid == "" {
			httputil.WriteJSONError(w, http.StatusBadRequest, "missing vid parameter")
			return
		}
		events, err := db.Events(vid)
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		httputil.WriteJSONOK(w, events)
	})

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("boxtrack-backup-%d.db", time.Now().UnixNano()))
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				logf("failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			logf("failed to stream backup: %v", err)
		}
	}))
}
