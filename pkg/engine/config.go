package engine

import "github.com/buhlergroup/chatengine/pkg/upstream"

// Config holds configuration for the conversation engine.
type Config struct {
	// Model is the upstream model identifier sent on every stream request.
	Model string

	// SystemPrompt is prepended as the first input item of every turn.
	SystemPrompt string

	// MaxContinuations caps the number of upstream streams one logical
	// turn may open. Zero or negative means the default of 10.
	MaxContinuations int

	// MaxOutputTokens limits generation length when positive.
	MaxOutputTokens int

	// Temperature is forwarded when non-nil.
	Temperature *float64

	// Reasoning requests reasoning summaries from the backend when set.
	Reasoning *upstream.ReasoningConfig
}

// maxContinuations returns the effective continuation cap.
func (c Config) maxContinuations() int {
	if c.MaxContinuations <= 0 {
		return 10
	}
	return c.MaxContinuations
}
