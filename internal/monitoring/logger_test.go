package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called, "no-op logger should not reach the previous logger")
}

func TestComponent(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	logf := Component("tracking")
	logf("armed segment %s", "seg-1")

	// swapping the logger after creation is honoured
	var late []string
	SetLogger(func(format string, v ...interface{}) {
		late = append(late, fmt.Sprintf(format, v...))
	})
	logf("stopped")

	assert.Equal(t, []string{"[tracking] armed segment seg-1"}, lines)
	assert.Equal(t, []string{"[tracking] stopped"}, late)
}

func TestLogf_Default(t *testing.T) {
	assert.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}
