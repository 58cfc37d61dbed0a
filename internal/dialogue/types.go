// Package dialogue wraps the conversational model that turns a caller's
// transcript into the assistant's reply text.
package dialogue

import (
	"context"
	"errors"
	"fmt"

	"github.com/voyxa/voice-webhook/internal/config"
)

// ErrEmptyGeneration is returned when the model produced no usable text
var ErrEmptyGeneration = errors.New("dialogue model returned no text")

// Options bounds a single inference call
type Options struct {
	// MaxTokens caps the generated length
	MaxTokens int

	// NumReturnSequences is the number of candidates requested; only the first is used
	NumReturnSequences int

	// Truncate allows the backend to cut input that exceeds the model context
	Truncate bool
}

// DefaultOptions returns the per-turn inference bounds
func DefaultOptions() Options {
	return Options{
		MaxTokens:          100,
		NumReturnSequences: 1,
		Truncate:           true,
	}
}

// Generator converts a transcript into a reply
type Generator interface {
	// Name returns the backend identifier (e.g., "huggingface", "openai")
	Name() string

	// Generate returns the model's reply to prompt
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// NewFromConfig builds the backend selected by DIALOGUE_PROVIDER
func NewFromConfig(cfg *config.Config) (Generator, error) {
	switch cfg.DialogueProvider {
	case config.DialogueHuggingFace:
		return NewHuggingFaceClient(cfg), nil
	case config.DialogueOpenAI:
		return NewOpenAIClient(cfg), nil
	}
	return nil, fmt.Errorf("unknown dialogue provider %q", cfg.DialogueProvider)
}
