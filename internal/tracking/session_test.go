package tracking

import (
	"errors"
	"image"
	"testing"

	"github.com/banshee-data/boxtrack/internal/annotation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 64, 48))
}

var roi = annotation.Region{X: 4, Y: 4, Width: 10, Height: 10}

func TestSession_StartsIdle(t *testing.T) {
	s := NewSession((&trackerFactory{}).New, DefaultMaxFailures)
	assert.False(t, s.Armed())
	assert.Equal(t, IdleNeverArmed, s.IdleReason())
	assert.Equal(t, -1.0, s.LastSuccess())

	_, ok, err := s.Step(testFrame())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrSessionIdle)
}

func TestSession_ArmReplacesInstance(t *testing.T) {
	f := &trackerFactory{}
	s := NewSession(f.New, DefaultMaxFailures)

	require.NoError(t, s.Arm(testFrame(), 48, roi, Target{Track: "t1", Segment: "s1", Box: "b1", At: 1.5}))
	assert.True(t, s.Armed())
	assert.Equal(t, 1.5, s.LastSuccess())
	assert.Equal(t, []int{48}, f.heights)

	require.NoError(t, s.Arm(testFrame(), 48, roi, Target{Track: "t1", Segment: "s2", Box: "b2", At: 2.0}))
	require.Len(t, f.built, 2)
	assert.Equal(t, 1, f.built[0].released, "first instance must be released on re-arm")
	assert.Equal(t, 0, f.built[1].released)
	assert.Equal(t, "s2", s.Target().Segment)
}

func TestSession_ArmFailure(t *testing.T) {
	t.Run("factory error", func(t *testing.T) {
		f := &trackerFactory{}
		s := NewSession(f.New, DefaultMaxFailures)
		require.NoError(t, s.Arm(testFrame(), 48, roi, Target{Track: "t1"}))

		f.err = errors.New("no model")
		err := s.Arm(testFrame(), 48, roi, Target{Track: "t2"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no model")
		assert.False(t, s.Armed())
		assert.Equal(t, IdleArmFailed, s.IdleReason())
		assert.Equal(t, 1, f.built[0].released)
		assert.Equal(t, Target{}, s.Target())
	})

	t.Run("empty region", func(t *testing.T) {
		s := NewSession((&trackerFactory{}).New, DefaultMaxFailures)
		assert.Error(t, s.Arm(testFrame(), 48, annotation.Region{Width: 0, Height: 5}, Target{}))
		assert.False(t, s.Armed())
	})

	t.Run("nil frame", func(t *testing.T) {
		s := NewSession((&trackerFactory{}).New, DefaultMaxFailures)
		assert.Error(t, s.Arm(nil, 48, roi, Target{}))
		assert.False(t, s.Armed())
	})
}

func TestSession_FailureThreshold(t *testing.T) {
	script := make([]bool, 60) // every step fails
	f := &trackerFactory{script: script}
	s := NewSession(f.New, DefaultMaxFailures)
	require.NoError(t, s.Arm(testFrame(), 48, roi, Target{Track: "t1", Segment: "s1"}))

	for i := 1; i <= DefaultMaxFailures; i++ {
		_, ok, err := s.Step(testFrame())
		require.NoError(t, err)
		require.False(t, ok)
		require.True(t, s.Armed(), "failure %d must keep the session armed", i)
		require.Equal(t, i, s.Failures())
	}

	_, ok, err := s.Step(testFrame())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Armed(), "failure 51 must end the session")
	assert.Equal(t, IdleFailureThreshold, s.IdleReason())
	assert.Equal(t, 1, f.last(t).released)

	_, _, err = s.Step(testFrame())
	assert.ErrorIs(t, err, ErrSessionIdle)
}

func TestSession_SuccessResetsFailures(t *testing.T) {
	f := &trackerFactory{script: []bool{false, false, true, false}}
	s := NewSession(f.New, 2)
	require.NoError(t, s.Arm(testFrame(), 48, roi, Target{Track: "t1"}))

	s.Step(testFrame())
	s.Step(testFrame())
	assert.Equal(t, 2, s.Failures())

	region, ok, err := s.Step(testFrame())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, roi.X+3, region.X)
	assert.Equal(t, 0, s.Failures())

	s.Step(testFrame())
	assert.True(t, s.Armed())
	assert.Equal(t, 1, s.Failures())
}

func TestSession_ZeroThreshold(t *testing.T) {
	f := &trackerFactory{script: []bool{false}}
	s := NewSession(f.New, 0)
	require.NoError(t, s.Arm(testFrame(), 48, roi, Target{}))
	s.Step(testFrame())
	assert.False(t, s.Armed(), "with no tolerance the first failure ends the session")
}

func TestSession_ResetIsIdempotent(t *testing.T) {
	f := &trackerFactory{script: []bool{false}}
	s := NewSession(f.New, DefaultMaxFailures)
	require.NoError(t, s.Arm(testFrame(), 48, roi, Target{Track: "t1", At: 3}))
	s.Step(testFrame())
	s.Succeeded(3.2)

	s.Reset()
	once := []interface{}{s.Armed(), s.Failures(), s.IdleReason(), s.LastSuccess(), s.Target()}
	s.Reset()

	assert.Equal(t, once, []interface{}{s.Armed(), s.Failures(), s.IdleReason(), s.LastSuccess(), s.Target()})
	assert.False(t, s.Armed())
	assert.Equal(t, 0, s.Failures())
	assert.Equal(t, IdleReset, s.IdleReason())
	assert.Equal(t, 3.2, s.LastSuccess(), "last success survives reset")
	assert.Equal(t, 1, f.last(t).released, "instance released exactly once")
}

func TestSession_CancelKeepsReasonOnRepeat(t *testing.T) {
	s := NewSession((&trackerFactory{}).New, DefaultMaxFailures)
	require.NoError(t, s.Arm(testFrame(), 48, roi, Target{}))
	s.Cancel()
	s.Reset()
	assert.Equal(t, IdleCancelled, s.IdleReason())
}

func TestSession_RetargetAndSucceeded(t *testing.T) {
	s := NewSession((&trackerFactory{}).New, DefaultMaxFailures)

	// no effect while idle
	s.Retarget("s9", "b9", 9)
	s.Succeeded(9)
	assert.Equal(t, Target{}, s.Target())
	assert.Equal(t, -1.0, s.LastSuccess())

	require.NoError(t, s.Arm(testFrame(), 48, roi, Target{Track: "t1", Segment: "s1", Box: "b1", At: 1}))
	s.Retarget("s2", "b5", 1.2)
	s.Succeeded(1.2)
	assert.Equal(t, Target{Track: "t1", Segment: "s2", Box: "b5", At: 1.2}, s.Target())
	assert.Equal(t, 1.2, s.LastSuccess())
}

func TestNewSession_NegativeThresholdUsesDefault(t *testing.T) {
	s := NewSession((&trackerFactory{}).New, -1)
	assert.Equal(t, DefaultMaxFailures, s.maxFailures)
}
