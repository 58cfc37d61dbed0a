package resilience

import "context"

// Guard combines a circuit breaker with retry for one upstream service.
// Each attempt passes through the breaker, so an open circuit ends retrying.
type Guard struct {
	Breaker *CircuitBreaker
	Retry   *RetryConfig
}

// NewGuard creates a Guard; a nil retry config means a single attempt
func NewGuard(breaker *CircuitBreaker, retry *RetryConfig) *Guard {
	if retry == nil {
		retry = &RetryConfig{MaxAttempts: 1}
	}
	return &Guard{Breaker: breaker, Retry: retry}
}

// Do runs fn under the breaker, retrying temporary failures
func (g *Guard) Do(ctx context.Context, fn func() error) error {
	attempt := fn
	if g.Breaker != nil {
		attempt = func() error { return g.Breaker.Call(fn) }
	}
	return RetryContext(ctx, attempt, g.Retry, IsRetryableOrNetwork)
}
