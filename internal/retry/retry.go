package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"lendinglibrary/internal/store"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	onRetry      func(attempt int, err error)
}

// Option configures OnConflict.
type Option func(*config) error

func WithMaxAttempts(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = n
		return nil
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = d
		return nil
	}
}

func WithJitterFactor(f float64) Option {
	return func(c *config) error {
		if f < 0 || f > 1 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = f
		return nil
	}
}

// WithOnRetry registers a hook called before each repeated attempt.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(c *config) error {
		c.onRetry = fn
		return nil
	}
}

// OnConflict runs fn and repeats it with exponential backoff while it fails
// with store.ErrConflict. Every other error is returned immediately.
//
// Default schedule: 0, 10, 20, 40, 80 ms (each with up to 30% jitter).
func OnConflict(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	cfg := config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			if cfg.onRetry != nil {
				cfg.onRetry(attempt, lastErr)
			}
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			if cfg.jitterFactor > 0 && delay > 0 {
				delay += time.Duration(rand.Float64() * cfg.jitterFactor * float64(delay))
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil || !errors.Is(lastErr, store.ErrConflict) {
			return lastErr
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", cfg.maxAttempts, lastErr)
}

// Tx runs fn in one transaction of s, starting a fresh transaction for every
// attempt that lost a conflict.
func Tx(ctx context.Context, s store.Store, fn func(ctx context.Context, tx store.Store) error, opts ...Option) error {
	return OnConflict(ctx, func(ctx context.Context) error {
		return s.WithinTx(ctx, fn)
	}, opts...)
}
