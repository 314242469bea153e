package tracking

import (
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/banshee-data/boxtrack/internal/annotation"
	"github.com/banshee-data/boxtrack/internal/config"
	"github.com/banshee-data/boxtrack/internal/monitoring"
	"github.com/banshee-data/boxtrack/internal/notice"
	"github.com/banshee-data/boxtrack/internal/timeutil"
	"github.com/banshee-data/boxtrack/internal/tracks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVID = "vid1"

// ---------------------------------------------------------------------------
// Fake tracker
// ---------------------------------------------------------------------------

// scriptedTracker reports the outcomes in script, one per step, and
// succeeds once the script runs out. Each success moves the region right
// by one pixel.
type scriptedTracker struct {
	script   []bool
	region   annotation.Region
	steps    int
	released int
}

func (a *scriptedTracker) Step(frame *image.RGBA) (annotation.Region, bool) {
	i := a.steps
	a.steps++
	ok := i >= len(a.script) || a.script[i]
	r := a.region
	r.X += float64(a.steps)
	return r, ok
}

func (a *scriptedTracker) Release() { a.released++ }

type trackerFactory struct {
	script  []bool
	err     error
	built   []*scriptedTracker
	rois    []annotation.Region
	heights []int
}

func (f *trackerFactory) New(frame *image.RGBA, frameHeight int, roi annotation.Region) (Algorithm, error) {
	if f.err != nil {
		return nil, f.err
	}
	a := &scriptedTracker{script: f.script, region: roi}
	f.built = append(f.built, a)
	f.rois = append(f.rois, roi)
	f.heights = append(f.heights, frameHeight)
	return a, nil
}

func (f *trackerFactory) last(t *testing.T) *scriptedTracker {
	t.Helper()
	require.NotEmpty(t, f.built, "no tracker was built")
	return f.built[len(f.built)-1]
}

// ---------------------------------------------------------------------------
// Fake video
// ---------------------------------------------------------------------------

type seekListener struct {
	id int
	fn func()
}

// fakeVideo queues seek requests and completes them only when the test
// calls deliver.
type fakeVideo struct {
	now      float64
	duration float64
	width    int
	height   int

	seeks     []float64
	pending   []float64
	listeners []seekListener
	nextID    int

	drawErr error
	draws   []float64
}

func newFakeVideo(duration float64) *fakeVideo {
	return &fakeVideo{duration: duration, width: 1280, height: 720}
}

func (v *fakeVideo) CurrentTime() float64 { return v.now }
func (v *fakeVideo) Duration() float64    { return v.duration }

func (v *fakeVideo) RequestSeek(t float64) {
	if t < 0 {
		t = 0
	}
	if t > v.duration {
		t = v.duration
	}
	v.seeks = append(v.seeks, t)
	v.pending = append(v.pending, t)
}

func (v *fakeVideo) OnSeeked(fn func()) func() {
	v.nextID++
	id := v.nextID
	v.listeners = append(v.listeners, seekListener{id: id, fn: fn})
	return func() {
		for i, l := range v.listeners {
			if l.id == id {
				v.listeners = append(v.listeners[:i], v.listeners[i+1:]...)
				return
			}
		}
	}
}

func (v *fakeVideo) DrawCurrentFrame(scale float64) (*image.RGBA, error) {
	if v.drawErr != nil {
		return nil, v.drawErr
	}
	v.draws = append(v.draws, v.now)
	w := int(float64(v.width) * scale)
	h := int(float64(v.height) * scale)
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

// deliver completes the oldest pending seek. It reports false when nothing
// was pending.
func (v *fakeVideo) deliver() bool {
	if len(v.pending) == 0 {
		return false
	}
	v.now = v.pending[0]
	v.pending = v.pending[1:]
	listeners := append([]seekListener(nil), v.listeners...)
	for _, l := range listeners {
		l.fn()
	}
	return true
}

// pump delivers seeks until none are pending and returns how many were
// delivered.
func (v *fakeVideo) pump(t *testing.T) int {
	t.Helper()
	n := 0
	for v.deliver() {
		n++
		require.Less(t, n, 10000, "seek loop did not terminate")
	}
	return n
}

func (v *fakeVideo) lastSeek(t *testing.T) float64 {
	t.Helper()
	require.NotEmpty(t, v.seeks)
	return v.seeks[len(v.seeks)-1]
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	store   *annotation.MemoryStore
	video   *fakeVideo
	factory *trackerFactory
	notices []notice.Notice
	m       *Manager
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// muteLogs routes the package logger into the test log for the duration of
// the test.
func muteLogs(t *testing.T) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

func testConfig(maxFailures int) *config.TrackingConfig {
	cfg := config.EmptyTrackingConfig()
	step := 0.04
	cfg.StepSeconds = &step
	cfg.MaxConsecutiveFailures = &maxFailures
	return cfg
}

func newHarness(t *testing.T, duration float64, script ...bool) *harness {
	return newHarnessWithConfig(t, duration, testConfig(DefaultMaxFailures), script...)
}

func newHarnessWithConfig(t *testing.T, duration float64, cfg *config.TrackingConfig, script ...bool) *harness {
	t.Helper()
	muteLogs(t)
	h := &harness{
		store:   annotation.NewMemoryStore().WithIDGenerator(sequentialIDs("r")),
		video:   newFakeVideo(duration),
		factory: &trackerFactory{script: script},
	}
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	clock.AutoAdvance(time.Millisecond)
	h.m = NewManager(testVID, h.store, h.video, h.factory.New, Options{
		Config:  cfg,
		Notices: notice.PublisherFunc(func(n notice.Notice) { h.notices = append(h.notices, n) }),
		Clock:   clock,
	})
	t.Cleanup(h.m.Close)
	return h
}

var testRegion = annotation.Region{X: 100, Y: 50, Width: 40, Height: 30}

// draw adds a user box at time at, with playback parked there.
func (h *harness) draw(t *testing.T, at float64) string {
	t.Helper()
	h.video.now = at
	id, err := h.store.AddRecord(testVID, []float64{at}, annotation.ShapeRect, testRegion, nil, annotation.Linkage{})
	require.NoError(t, err)
	return id
}

func (h *harness) record(t *testing.T, id string) annotation.Record {
	t.Helper()
	rec, ok := h.store.Record(id)
	require.True(t, ok, "record %s missing", id)
	return rec
}

func (h *harness) track(t *testing.T, root string) *tracks.Track {
	t.Helper()
	tr, ok := h.m.Tracks()[root]
	require.True(t, ok, "track %s missing", root)
	return tr
}

func (h *harness) boxes(t *testing.T, root, segment string) []string {
	t.Helper()
	b, ok := h.track(t, root).Segment(segment)
	require.True(t, ok, "segment %s missing from track %s", segment, root)
	return b
}

func (h *harness) times(t *testing.T, ids []string) []float64 {
	t.Helper()
	out := make([]float64, len(ids))
	for i, id := range ids {
		out[i] = h.record(t, id).Start()
	}
	return out
}

func (h *harness) lastNotice(t *testing.T) notice.Notice {
	t.Helper()
	require.NotEmpty(t, h.notices)
	return h.notices[len(h.notices)-1]
}

// checkInvariants asserts that the track set agrees with the store: segment
// orders and box lists are chronological, and every listed box points back
// at its segment and track and is listed exactly once.
func (h *harness) checkInvariants(t *testing.T) {
	t.Helper()
	key := tracks.KeyFromStore(h.store)
	seen := make(map[string]string)
	for root, tr := range h.m.Tracks() {
		assert.True(t, tr.Sorted(key), "track %s out of order", root)
		for _, seg := range tr.Order() {
			segRec, ok := h.store.Record(seg)
			if assert.True(t, ok, "segment %s of track %s missing from store", seg, root) {
				assert.True(t, segRec.IsTrackSegment())
				assert.Equal(t, root, segRec.Root)
			}
			boxes, _ := tr.Segment(seg)
			for _, b := range boxes {
				rec, ok := h.store.Record(b)
				if !assert.True(t, ok, "box %s of segment %s missing from store", b, seg) {
					continue
				}
				assert.Equal(t, seg, rec.Segment, "box %s", b)
				assert.Equal(t, root, rec.TrackRoot(), "box %s", b)
				prev, dup := seen[b]
				assert.False(t, dup, "box %s listed in %s and %s", b, prev, seg)
				seen[b] = seg
			}
		}
	}
}

var errDraw = errors.New("decoder stalled")
