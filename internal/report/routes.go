package report

import (
	"bytes"
	"net/http"

	"github.com/banshee-data/boxtrack/internal/httputil"
	"github.com/banshee-data/boxtrack/internal/tracks"
	"tailscale.com/tsweb"
)

// Source supplies the tracks to report on. Its methods are called from
// HTTP handlers, so the tracks must not be mutated while a request runs.
type Source interface {
	VideoID() string
	Tracks() tracks.Set
}

// BoxLocation is the track and segment currently listing a box.
type BoxLocation struct {
	Box     string `json:"box"`
	Root    string `json:"root"`
	Segment string `json:"segment"`
}

// AttachAdminRoutes serves the track summary as JSON, a box lookup, the
// timeline page and the coverage plot under /debug/.
func AttachAdminRoutes(mux *http.ServeMux, src Source, store Lookup) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("tracks", "Track summary (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, Summarise(src.Tracks(), store))
	})

	debug.HandleSilentFunc("track-box", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			httputil.WriteJSONError(w, http.StatusBadRequest, "missing 'id' parameter")
			return
		}
		root, seg, ok := src.Tracks().Locate(id)
		if !ok {
			httputil.WriteJSONError(w, http.StatusNotFound, "box "+id+" is not part of a track")
			return
		}
		httputil.WriteJSONOK(w, BoxLocation{Box: id, Root: root, Segment: seg})
	})

	debug.HandleFunc("tracks-timeline", "Track segments over time", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := Timeline(&buf, src.VideoID(), Summarise(src.Tracks(), store)); err != nil {
			logf("timeline for %s: %v", src.VideoID(), err)
			http.Error(w, "failed to render timeline: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})

	debug.HandleSilentFunc("tracks-coverage.png", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := PlotCoverage(&buf, src.VideoID(), Summarise(src.Tracks(), store)); err != nil {
			logf("coverage plot for %s: %v", src.VideoID(), err)
			http.Error(w, "failed to render plot: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	})
}
