// Package tts wraps the speech model that renders reply text as PCM audio.
package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/voyxa/voice-webhook/internal/config"
)

var (
	// ErrEmptyText is returned when there is nothing to synthesize
	ErrEmptyText = errors.New("empty text for synthesis")
	// ErrEmptyAudio is returned when the backend produced no samples
	ErrEmptyAudio = errors.New("synthesizer returned no audio")
)

// Speech is mono 16-bit PCM audio
type Speech struct {
	Samples    []int16
	SampleRate int // Sample rate in Hz as produced by the backend
}

// Synthesizer defines the interface for a Text-to-Speech client
type Synthesizer interface {
	// Name returns the backend identifier (e.g., "cartesia", "piper")
	Name() string

	// Synthesize converts text to audio
	Synthesize(ctx context.Context, text string) (*Speech, error)

	// Close closes the client and cleans up resources
	Close() error
}

// NewFromConfig builds the backend selected by TTS_PROVIDER
func NewFromConfig(cfg *config.Config) (Synthesizer, error) {
	switch cfg.TTSProvider {
	case config.TTSCartesia:
		return NewCartesiaClient(cfg), nil
	case config.TTSPiper:
		return NewPiperClient(cfg), nil
	}
	return nil, fmt.Errorf("unknown tts provider %q", cfg.TTSProvider)
}
