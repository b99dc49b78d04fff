package types

import (
	"fmt"
	"time"
)

// Default configuration values, matching the documented compression policy.
const (
	DefaultSTMMaxMessages            = 12
	DefaultCompressionTokenThreshold = 2400
	DefaultCompressionIntervalSteps  = 4
	DefaultProvider                  = "anthropic"
	DefaultModel                     = "claude-3-5-haiku-20241022"
)

// RunConfig holds the per-run compression and reasoning settings.
type RunConfig struct {
	// STMMaxMessages is the size of the short-term memory tail: the most
	// recent messages injected verbatim into every turn.
	// Default: 12
	STMMaxMessages int `json:"stm_max_messages"`

	// CompressionTokenThreshold triggers compression whenever the baseline
	// transcript cost reaches this many estimated tokens.
	// Default: 2400
	CompressionTokenThreshold int `json:"compression_token_threshold"`

	// CompressionIntervalSteps triggers compression every N steps
	// regardless of transcript size. Zero disables the interval trigger.
	// Default: 4
	CompressionIntervalSteps int `json:"compression_interval_steps"`

	// UseLLM enables the model-backed reasoning provider. When false the
	// engine runs entirely on the deterministic fallbacks.
	// Default: true
	UseLLM bool `json:"use_llm"`

	// Provider names the reasoning backend. Default: "anthropic"
	Provider string `json:"provider"`

	// Model is the model ID used by the reasoning provider.
	// Default: "claude-3-5-haiku-20241022"
	Model string `json:"model"`
}

// DefaultRunConfig returns a RunConfig with the documented defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		STMMaxMessages:            DefaultSTMMaxMessages,
		CompressionTokenThreshold: DefaultCompressionTokenThreshold,
		CompressionIntervalSteps:  DefaultCompressionIntervalSteps,
		UseLLM:                    true,
		Provider:                  DefaultProvider,
		Model:                     DefaultModel,
	}
}

// ApplyDefaults fills in zero values with defaults. UseLLM defaults to
// true only through DefaultRunConfig; a caller-provided false is kept.
func (c *RunConfig) ApplyDefaults() {
	if c.STMMaxMessages == 0 {
		c.STMMaxMessages = DefaultSTMMaxMessages
	}
	if c.CompressionTokenThreshold == 0 {
		c.CompressionTokenThreshold = DefaultCompressionTokenThreshold
	}
	if c.CompressionIntervalSteps == 0 {
		c.CompressionIntervalSteps = DefaultCompressionIntervalSteps
	}
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *RunConfig) Validate() error {
	if c.STMMaxMessages <= 0 {
		return fmt.Errorf("stm_max_messages must be positive, got %d", c.STMMaxMessages)
	}
	if c.CompressionTokenThreshold <= 0 {
		return fmt.Errorf("compression_token_threshold must be positive, got %d", c.CompressionTokenThreshold)
	}
	if c.CompressionIntervalSteps < 0 {
		return fmt.Errorf("compression_interval_steps must be non-negative, got %d", c.CompressionIntervalSteps)
	}
	if c.UseLLM && c.Model == "" {
		return fmt.Errorf("model is required when use_llm is enabled")
	}
	return nil
}

// Run is one long-running interactive session. StepIndex is a monotonic
// counter starting at 0 and incremented once per accepted user message.
type Run struct {
	ID        string    `json:"run_id"`
	Objective string    `json:"objective"`
	Scenario  string    `json:"scenario"`
	Config    RunConfig `json:"config"`
	StepIndex int       `json:"step_index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metrics is the per-run token accounting persisted after every step.
// ReductionPct compares the baseline (full transcript) cost against the
// injected (compressed) cost using the same estimator, so it is comparable
// run-over-run.
type Metrics struct {
	BaselineTokens   int     `json:"baseline_tokens"`
	InjectedTokens   int     `json:"injected_tokens"`
	ReductionPct     float64 `json:"reduction_pct"`
	LastSnapshotPath string  `json:"last_snapshot_path,omitempty"`
	CriticVerdict    Verdict `json:"critic_verdict,omitempty"`
}

// StepResult is returned from one orchestrator turn.
type StepResult struct {
	RunID                string  `json:"run_id"`
	StepIndex            int     `json:"step_index"`
	UserMessageID        string  `json:"user_message_id"`
	AssistantMessage     string  `json:"assistant_message"`
	TriggeredCompression bool    `json:"triggered_compression"`
	Metrics              Metrics `json:"metrics"`
}
