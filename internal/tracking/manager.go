package tracking

import (
	"errors"
	"fmt"

	"github.com/banshee-data/boxtrack/internal/annotation"
	"github.com/banshee-data/boxtrack/internal/config"
	"github.com/banshee-data/boxtrack/internal/monitoring"
	"github.com/banshee-data/boxtrack/internal/notice"
	"github.com/banshee-data/boxtrack/internal/timeutil"
	"github.com/banshee-data/boxtrack/internal/tracks"
)

var (
	// ErrNotArmed is returned by Start when no box has been drawn or edited
	// since the last loop ended.
	ErrNotArmed = errors.New("tracking: no armed session")
	// ErrAlreadyTracking is returned by Start while a loop is running.
	ErrAlreadyTracking = errors.New("tracking: loop already running")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("tracking: manager closed")
)

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Config  *config.TrackingConfig
	Notices notice.Publisher
	Clock   timeutil.Clock
}

// Manager keeps the tracks of one video in step with an annotation store and
// runs the tracking loop over it.
type Manager struct {
	vid     string
	store   annotation.Store
	video   Video
	session *Session
	tracks  tracks.Set
	key     tracks.TimeKey

	notices notice.Publisher
	clock   timeutil.Clock
	logf    func(format string, v ...interface{})

	step       float64 // seconds between tracked frames
	eps        float64
	scale      float64 // frame downsampling factor
	precision  int     // decimal places kept in written times
	attr       string  // attribute linking boxes and segments to a track
	listenerID string

	// placing is set while the manager itself creates a segment that it
	// then positions explicitly.
	placing bool
	closed  bool

	loop loop
}

// NewManager builds the tracks of vid from the store and subscribes to its
// mutations.
func NewManager(vid string, store annotation.Store, video Video, factory Factory, opts Options) *Manager {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyTrackingConfig()
	}
	m := &Manager{
		vid:        vid,
		store:      store,
		video:      video,
		session:    NewSession(factory, cfg.GetMaxConsecutiveFailures()),
		key:        tracks.KeyFromStore(store),
		notices:    opts.Notices,
		clock:      opts.Clock,
		logf:       monitoring.Component("tracking"),
		step:       cfg.GetStepSeconds(),
		eps:        cfg.GetEpsilonSeconds(),
		scale:      cfg.GetFrameScale(),
		precision:  cfg.GetTimePrecision(),
		attr:       cfg.GetTrackAttribute(),
		listenerID: cfg.GetListenerID(),
	}
	if m.notices == nil {
		m.notices = notice.Discard
	}
	if m.clock == nil {
		m.clock = timeutil.RealClock{}
	}

	m.rebuild()
	m.subscribe()
	m.logf("managing %d tracks for video %s", len(m.tracks), vid)
	return m
}

// VideoID returns the id of the managed video.
func (m *Manager) VideoID() string { return m.vid }

// Tracks returns the live track set. Callers must not modify it.
func (m *Manager) Tracks() tracks.Set { return m.tracks }

// Session returns the tracker session.
func (m *Manager) Session() *Session { return m.session }

// Tracking reports whether a loop is running.
func (m *Manager) Tracking() bool { return m.loop.state != stateInactive }

// rebuild discards the track set and rebuilds it from the store.
func (m *Manager) rebuild() {
	m.tracks = tracks.Build(m.store.Records(m.vid))
}

// Close unsubscribes from the store, stops any running loop and releases
// the tracker.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.store.ClearEvents(m.listenerID)
	if m.Tracking() {
		m.session.Cancel()
		m.stop(notice.ReasonCancelled, nil)
	}
	m.session.Reset()
}

func (m *Manager) round(t float64) float64 {
	return annotation.RoundTime(t, m.precision)
}

func (m *Manager) publish(kind notice.Kind, reason notice.Reason, format string, v ...interface{}) {
	m.notices.Publish(notice.Notice{
		Kind:    kind,
		Reason:  reason,
		Message: fmt.Sprintf(format, v...),
		At:      m.clock.Now(),
	})
}
