package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// DefaultConfigPath is the path to the canonical tracking defaults file.
const DefaultConfigPath = "config/tracking.defaults.json"

// EnvPrefix prefixes every environment override read by ApplyEnv.
const EnvPrefix = "BOXTRACK_"

// TrackingConfig holds the tunables of the box tracking core. Every field is
// optional; the Get* accessors supply defaults for fields left unset, so a
// partial JSON file is safe.
type TrackingConfig struct {
	// StepSeconds is the fixed frame advance between tracking steps (δ).
	StepSeconds *float64 `json:"step_seconds,omitempty" env:"STEP_SECONDS"`
	// EpsilonSeconds is the tolerance used for segment bounds and the
	// boundary stop test (ε).
	EpsilonSeconds *float64 `json:"epsilon_seconds,omitempty" env:"EPSILON_SECONDS"`
	// FrameScale is the downsampling factor applied to frames before they
	// reach the tracker algorithm.
	FrameScale *float64 `json:"frame_scale,omitempty" env:"FRAME_SCALE"`
	// MaxConsecutiveFailures is the number of failed steps tolerated before
	// the session goes idle.
	MaxConsecutiveFailures *int `json:"max_consecutive_failures,omitempty" env:"MAX_CONSECUTIVE_FAILURES"`
	// TimePrecision is the number of decimal places kept on written times.
	TimePrecision *int `json:"time_precision,omitempty" env:"TIME_PRECISION"`
	// TrackAttribute is the attribute id linking boxes and segments to their
	// track root.
	TrackAttribute *string `json:"track_attribute,omitempty" env:"TRACK_ATTRIBUTE"`
	// ListenerID names the store subscriptions owned by the tracking manager.
	ListenerID *string `json:"listener_id,omitempty" env:"LISTENER_ID"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTrackingConfig returns a TrackingConfig with all fields set to nil.
func EmptyTrackingConfig() *TrackingConfig {
	return &TrackingConfig{}
}

// LoadTrackingConfig loads a TrackingConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadTrackingConfig(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories and
// panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TrackingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/annotation/annotationdb/
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// ApplyEnv overrides fields with BOXTRACK_* environment variables, for
// example BOXTRACK_STEP_SECONDS=0.0333. Unset variables leave the current
// values in place. The result is validated.
func (c *TrackingConfig) ApplyEnv() error {
	var overrides TrackingConfig
	if err := env.ParseWithOptions(&overrides, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	c.Merge(&overrides)
	return c.Validate()
}

// Merge copies every non-nil field of other into c.
func (c *TrackingConfig) Merge(other *TrackingConfig) {
	if other == nil {
		return
	}
	if other.StepSeconds != nil {
		c.StepSeconds = other.StepSeconds
	}
	if other.EpsilonSeconds != nil {
		c.EpsilonSeconds = other.EpsilonSeconds
	}
	if other.FrameScale != nil {
		c.FrameScale = other.FrameScale
	}
	if other.MaxConsecutiveFailures != nil {
		c.MaxConsecutiveFailures = other.MaxConsecutiveFailures
	}
	if other.TimePrecision != nil {
		c.TimePrecision = other.TimePrecision
	}
	if other.TrackAttribute != nil {
		c.TrackAttribute = other.TrackAttribute
	}
	if other.ListenerID != nil {
		c.ListenerID = other.ListenerID
	}
}

// Validate checks that the configuration values are valid.
func (c *TrackingConfig) Validate() error {
	if c.StepSeconds != nil && *c.StepSeconds <= 0 {
		return fmt.Errorf("step_seconds must be positive, got %f", *c.StepSeconds)
	}
	if c.EpsilonSeconds != nil {
		if *c.EpsilonSeconds < 0 {
			return fmt.Errorf("epsilon_seconds must be non-negative, got %f", *c.EpsilonSeconds)
		}
		if *c.EpsilonSeconds >= c.GetStepSeconds() {
			return fmt.Errorf("epsilon_seconds (%f) must be smaller than step_seconds (%f)", *c.EpsilonSeconds, c.GetStepSeconds())
		}
	}
	if c.FrameScale != nil && (*c.FrameScale <= 0 || *c.FrameScale > 1) {
		return fmt.Errorf("frame_scale must be in (0, 1], got %f", *c.FrameScale)
	}
	if c.MaxConsecutiveFailures != nil && *c.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("max_consecutive_failures must be non-negative, got %d", *c.MaxConsecutiveFailures)
	}
	if c.TimePrecision != nil && (*c.TimePrecision < 0 || *c.TimePrecision > 9) {
		return fmt.Errorf("time_precision must be between 0 and 9, got %d", *c.TimePrecision)
	}
	if c.TrackAttribute != nil && *c.TrackAttribute == "" {
		return fmt.Errorf("track_attribute must not be empty")
	}
	if c.ListenerID != nil && *c.ListenerID == "" {
		return fmt.Errorf("listener_id must not be empty")
	}
	return nil
}

// GetStepSeconds returns the step_seconds value or the default (1/25 s).
func (c *TrackingConfig) GetStepSeconds() float64 {
	if c.StepSeconds == nil {
		return 1.0 / 25
	}
	return *c.StepSeconds
}

// GetEpsilonSeconds returns the epsilon_seconds value or the default.
func (c *TrackingConfig) GetEpsilonSeconds() float64 {
	if c.EpsilonSeconds == nil {
		return 1e-3
	}
	return *c.EpsilonSeconds
}

// GetFrameScale returns the frame_scale value or the default.
func (c *TrackingConfig) GetFrameScale() float64 {
	if c.FrameScale == nil {
		return 0.5
	}
	return *c.FrameScale
}

// GetMaxConsecutiveFailures returns the max_consecutive_failures value or the default.
func (c *TrackingConfig) GetMaxConsecutiveFailures() int {
	if c.MaxConsecutiveFailures == nil {
		return 50
	}
	return *c.MaxConsecutiveFailures
}

// GetTimePrecision returns the time_precision value or the default.
func (c *TrackingConfig) GetTimePrecision() int {
	if c.TimePrecision == nil {
		return 3
	}
	return *c.TimePrecision
}

// GetTrackAttribute returns the track_attribute value or the default.
func (c *TrackingConfig) GetTrackAttribute() string {
	if c.TrackAttribute == nil {
		return "track"
	}
	return *c.TrackAttribute
}

// GetListenerID returns the listener_id value or the default.
func (c *TrackingConfig) GetListenerID() string {
	if c.ListenerID == nil {
		return "TrackingHandler"
	}
	return *c.ListenerID
}
