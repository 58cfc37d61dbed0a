package dialogue

import (
	"context"
	"fmt"

	"github.com/voyxa/voice-webhook/internal/resilience"
)

// Resilient guards a Generator with a circuit breaker and retry
type Resilient struct {
	next  Generator
	guard *resilience.Guard
}

// NewResilient wraps next with guard
func NewResilient(next Generator, guard *resilience.Guard) *Resilient {
	return &Resilient{next: next, guard: guard}
}

// Name returns the wrapped backend's identifier
func (r *Resilient) Name() string { return r.next.Name() }

// Generate calls the wrapped generator under the guard
func (r *Resilient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	var text string
	err := r.guard.Do(ctx, func() error {
		var err error
		text, err = r.next.Generate(ctx, prompt, opts)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", r.next.Name(), err)
	}
	return text, nil
}
