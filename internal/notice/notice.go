// Package notice carries user-visible status notices from the tracking core
// to the rest of the application.
package notice

import (
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/boxtrack/internal/httputil"
	"tailscale.com/tsweb"
)

// Kind classifies a notice.
type Kind string

const (
	KindArmed    Kind = "armed"    // session initialised on a box
	KindStarted  Kind = "started"  // tracking loop started
	KindStopped  Kind = "stopped"  // tracking loop ended
	KindRejected Kind = "rejected" // start request refused
	KindFailed   Kind = "failed"   // session could not be armed
)

// Reason explains why a tracking loop stopped.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonCancelled        Reason = "cancelled"
	ReasonFailureThreshold Reason = "failure_threshold"
	ReasonBoundary         Reason = "segment_boundary"
	ReasonEndOfMedia       Reason = "end_of_media"
	ReasonError            Reason = "error"
)

// Notice is one status message.
type Notice struct {
	Kind    Kind      `json:"kind"`
	Reason  Reason    `json:"reason,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (n Notice) String() string {
	if n.Reason != ReasonNone {
		return fmt.Sprintf("%s (%s): %s", n.Kind, n.Reason, n.Message)
	}
	return fmt.Sprintf("%s: %s", n.Kind, n.Message)
}

// Publisher accepts notices.
type Publisher interface {
	Publish(Notice)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Notice)

// Publish implements Publisher.
func (f PublisherFunc) Publish(n Notice) { f(n) }

// Discard drops every notice.
var Discard Publisher = PublisherFunc(func(Notice) {})

// subscriberBuffer bounds how far a slow subscriber may lag before notices
// are dropped for it.
const subscriberBuffer = 16

// Mux fans notices out to any number of subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the notice.
type Mux struct {
	mu          sync.Mutex
	subscribers map[string]chan Notice
	last        *Notice
	closing     bool
}

var _ Publisher = (*Mux)(nil)

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{subscribers: make(map[string]chan Notice)}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a channel receiving every subsequent notice. The id is
// used to unsubscribe.
func (m *Mux) Subscribe() (string, <-chan Notice) {
	id := randomID()
	ch := make(chan Notice, subscriberBuffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscriber channel.
func (m *Mux) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Publish implements Publisher.
func (m *Mux) Publish(n Notice) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return
	}
	m.last = &n
	for _, ch := range m.subscribers {
		select {
		case ch <- n:
		default:
			// subscriber is behind; drop rather than block the tracking loop
		}
	}
}

// Last returns the most recently published notice.
func (m *Mux) Last() (Notice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Notice{}, false
	}
	return *m.last, true
}

// Close closes every subscriber channel. Later notices are dropped.
func (m *Mux) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closing = true
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
}

// AttachAdminRoutes mounts notice debugging endpoints under /debug/ on mux.
func (m *Mux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("notice", "most recent tracking notice", func(w http.ResponseWriter, r *http.Request) {
		n, ok := m.Last()
		if !ok {
			httputil.WriteJSONError(w, http.StatusNotFound, "no notices yet")
			return
		}
		httputil.WriteJSONOK(w, n)
	})

	// Server-Sent Events stream of notices as they are published.
	debug.HandleSilentFunc("notices", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case n, ok := <-c:
				if !ok {
					return
				}
				payload, err := json.Marshal(n)
				if err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
