package operations

import (
	"time"

	"churncli/internal/config"
)

// Config represents the run execution configuration
type Config struct {
	// Step-specific timeouts
	StepTimeouts map[string]time.Duration `json:"step_timeouts"`

	// Timeout for steps without an entry in StepTimeouts
	DefaultTimeout time.Duration `json:"default_timeout"`

	// Retry configuration for steps
	RetryConfig RetryConfig `json:"retry_config"`

	// Whether to continue with independent steps after a failure
	ContinueOnError bool `json:"continue_on_error"`

	// Where the run manifest is written; empty disables it
	ManifestPath string `json:"manifest_path"`
}

// NewConfig returns the default run configuration
func NewConfig() *Config {
	return &Config{
		StepTimeouts: map[string]time.Duration{
			StepIDExtract:    DefaultExtractTimeout,
			StepIDModelBonus: DefaultModelTimeout,
			StepIDModelShap:  DefaultModelTimeout,
		},
		DefaultTimeout: DefaultStepTimeout,
		RetryConfig:    NewRetryConfig(),
	}
}

// FromRunConfig applies the runtime settings onto the defaults
func FromRunConfig(rc config.RunConfig) *Config {
	c := NewConfig()
	if rc.StepTimeout > 0 {
		c.DefaultTimeout = rc.StepTimeout
	}
	if rc.MaxAttempts > 0 {
		c.RetryConfig.MaxAttempts = rc.MaxAttempts
	}
	c.ContinueOnError = rc.ContinueOnError
	return c
}

// GetStageTimeout returns the timeout for a specific step
func (c *Config) GetStageTimeout(stepID string) time.Duration {
	if timeout, ok := c.StepTimeouts[stepID]; ok && timeout > 0 {
		return timeout
	}
	if c.DefaultTimeout > 0 {
		return c.DefaultTimeout
	}
	return DefaultStepTimeout
}

// SetStageTimeout sets the timeout for a specific step
func (c *Config) SetStageTimeout(stepID string, timeout time.Duration) {
	if c.StepTimeouts == nil {
		c.StepTimeouts = make(map[string]time.Duration)
	}
	c.StepTimeouts[stepID] = timeout
}
