package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	// MaxAttempts of zero or less retries until the context ends
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
}

// StreamConfig returns config for re-establishing a snapshot stream. It
// never gives up on its own.
func StreamConfig() Config {
	return Config{
		MaxAttempts:    0,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
}

// IsRetryable checks if an error should be retried
type IsRetryable func(error) bool

// DefaultRetryable retries on temporary and timeout errors
func DefaultRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	type temporary interface {
		Temporary() bool
	}
	var te temporary
	if errors.As(err, &te) && te.Temporary() {
		return true
	}

	type timeout interface {
		Timeout() bool
	}
	var to timeout
	if errors.As(err, &to) && to.Timeout() {
		return true
	}

	return false
}

// Do executes a function with retry logic
func Do(ctx context.Context, config Config, fn func(context.Context) error) error {
	return DoWithRetryable(ctx, config, DefaultRetryable, fn)
}

// DoWithRetryable executes a function with retry logic and custom retryability check
func DoWithRetryable(ctx context.Context, config Config, isRetryable IsRetryable, fn func(context.Context) error) error {
	var lastErr error
	b := NewBackoff(config)

	for {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		delay := b.Next()
		if delay == 0 {
			return err
		}

		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff provides exponential backoff with jitter
type Backoff struct {
	config  Config
	attempt int
	rng     *rand.Rand
}

// NewBackoff creates a new Backoff
func NewBackoff(config Config) *Backoff {
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	return &Backoff{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay before the next attempt, or zero once
// MaxAttempts attempts have been made.
func (b *Backoff) Next() time.Duration {
	b.attempt++

	if b.config.MaxAttempts > 0 && b.attempt >= b.config.MaxAttempts {
		return 0
	}

	// Calculate exponential backoff
	backoff := b.config.InitialBackoff
	for i := 1; i < b.attempt; i++ {
		backoff = time.Duration(float64(backoff) * b.config.Multiplier)
		if backoff > b.config.MaxBackoff {
			backoff = b.config.MaxBackoff
			break
		}
	}

	// Add ±25% jitter
	if b.config.Jitter {
		jitter := time.Duration(float64(backoff) * 0.25 * (2*b.rng.Float64() - 1))
		backoff = backoff + jitter
	}

	return backoff
}

// Reset resets the backoff to initial state
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the current attempt number
func (b *Backoff) Attempt() int {
	return b.attempt
}
