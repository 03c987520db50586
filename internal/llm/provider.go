package llm

import (
	"context"
	"errors"
)

// ErrGeneration wraps every provider failure so callers can map it to one status
var ErrGeneration = errors.New("text generation failed")

// Options are the sampling parameters of one generation
type Options struct {
	MaxNewTokens int
	Temperature  float64
	DoSample     bool
}

// DefaultOptions mirrors the reply settings used for chat
func DefaultOptions() Options {
	return Options{MaxNewTokens: 100, Temperature: 0.7, DoSample: true}
}

// EffectiveTemperature is the temperature to send to backends that have no
// separate sampling switch: greedy decoding when sampling is off.
func (o Options) EffectiveTemperature() float64 {
	if !o.DoSample {
		return 0
	}
	return o.Temperature
}

// Response contains the generation result
type Response struct {
	Text       string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Provider defines the interface for text generation backends
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Generate continues the prompt
	Generate(ctx context.Context, prompt string, opts Options, model string) (*Response, error)
}
