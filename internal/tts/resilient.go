package tts

import (
	"context"
	"fmt"

	"github.com/voyxa/voice-webhook/internal/resilience"
)

// Resilient guards a Synthesizer with a circuit breaker and retry
type Resilient struct {
	next  Synthesizer
	guard *resilience.Guard
}

// NewResilient wraps next with guard
func NewResilient(next Synthesizer, guard *resilience.Guard) *Resilient {
	return &Resilient{next: next, guard: guard}
}

// Name returns the wrapped backend's identifier
func (r *Resilient) Name() string { return r.next.Name() }

// Synthesize calls the wrapped synthesizer under the guard
func (r *Resilient) Synthesize(ctx context.Context, text string) (*Speech, error) {
	var speech *Speech
	err := r.guard.Do(ctx, func() error {
		var err error
		speech, err = r.next.Synthesize(ctx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.next.Name(), err)
	}
	return speech, nil
}

// Close closes the wrapped synthesizer
func (r *Resilient) Close() error { return r.next.Close() }
