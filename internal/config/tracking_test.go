package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := EmptyTrackingConfig()

	assert.InDelta(t, 0.04, cfg.GetStepSeconds(), 1e-12)
	assert.InDelta(t, 0.001, cfg.GetEpsilonSeconds(), 1e-12)
	assert.InDelta(t, 0.5, cfg.GetFrameScale(), 1e-12)
	assert.Equal(t, 50, cfg.GetMaxConsecutiveFailures())
	assert.Equal(t, 3, cfg.GetTimePrecision())
	assert.Equal(t, "track", cfg.GetTrackAttribute())
	assert.Equal(t, "TrackingHandler", cfg.GetListenerID())
	assert.NoError(t, cfg.Validate())
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	require.NotNil(t, cfg)
	require.NotNil(t, cfg.StepSeconds)
	assert.InDelta(t, 0.04, cfg.GetStepSeconds(), 1e-12)
	assert.Equal(t, 50, cfg.GetMaxConsecutiveFailures())
}

func TestLoadTrackingConfig(t *testing.T) {
	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := writeConfig(t, "partial.json", `{"frame_scale": 0.25}`)
		cfg, err := LoadTrackingConfig(path)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, cfg.GetFrameScale(), 1e-12)
		assert.InDelta(t, 0.04, cfg.GetStepSeconds(), 1e-12)
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		path := writeConfig(t, "config.yaml", `{}`)
		_, err := LoadTrackingConfig(path)
		assert.ErrorContains(t, err, ".json extension")
	})

	t.Run("rejects missing file", func(t *testing.T) {
		_, err := LoadTrackingConfig(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		path := writeConfig(t, "bad.json", `{"step_seconds": `)
		_, err := LoadTrackingConfig(path)
		assert.ErrorContains(t, err, "parse config JSON")
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		path := writeConfig(t, "invalid.json", `{"step_seconds": -1}`)
		_, err := LoadTrackingConfig(path)
		assert.ErrorContains(t, err, "step_seconds must be positive")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TrackingConfig
		wantErr string
	}{
		{"zero step", TrackingConfig{StepSeconds: ptrFloat64(0)}, "step_seconds"},
		{"negative epsilon", TrackingConfig{EpsilonSeconds: ptrFloat64(-0.1)}, "epsilon_seconds must be non-negative"},
		{"epsilon not below step", TrackingConfig{StepSeconds: ptrFloat64(0.04), EpsilonSeconds: ptrFloat64(0.04)}, "must be smaller"},
		{"scale above one", TrackingConfig{FrameScale: ptrFloat64(1.5)}, "frame_scale"},
		{"negative failures", TrackingConfig{MaxConsecutiveFailures: ptrInt(-1)}, "max_consecutive_failures"},
		{"precision too large", TrackingConfig{TimePrecision: ptrInt(12)}, "time_precision"},
		{"empty attribute", TrackingConfig{TrackAttribute: ptrString("")}, "track_attribute"},
		{"empty listener", TrackingConfig{ListenerID: ptrString("")}, "listener_id"},
		{"valid", TrackingConfig{StepSeconds: ptrFloat64(1.0 / 30), FrameScale: ptrFloat64(1)}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Run("overrides set variables only", func(t *testing.T) {
		t.Setenv("BOXTRACK_STEP_SECONDS", "0.0333")
		t.Setenv("BOXTRACK_TRACK_ATTRIBUTE", "object")

		cfg := &TrackingConfig{FrameScale: ptrFloat64(0.25)}
		require.NoError(t, cfg.ApplyEnv())

		assert.InDelta(t, 0.0333, cfg.GetStepSeconds(), 1e-12)
		assert.Equal(t, "object", cfg.GetTrackAttribute())
		assert.InDelta(t, 0.25, cfg.GetFrameScale(), 1e-12)
		assert.Nil(t, cfg.MaxConsecutiveFailures)
	})

	t.Run("rejects unparsable values", func(t *testing.T) {
		t.Setenv("BOXTRACK_MAX_CONSECUTIVE_FAILURES", "many")
		cfg := EmptyTrackingConfig()
		assert.ErrorContains(t, cfg.ApplyEnv(), "parse env")
	})

	t.Run("validates merged result", func(t *testing.T) {
		t.Setenv("BOXTRACK_FRAME_SCALE", "2")
		cfg := EmptyTrackingConfig()
		assert.ErrorContains(t, cfg.ApplyEnv(), "frame_scale")
	})
}

func TestMergeNil(t *testing.T) {
	cfg := &TrackingConfig{StepSeconds: ptrFloat64(0.1)}
	cfg.Merge(nil)
	assert.InDelta(t, 0.1, cfg.GetStepSeconds(), 1e-12)
}
