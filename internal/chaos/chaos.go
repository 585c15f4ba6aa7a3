// Package chaos wraps a store with injected faults so the retry and
// health paths can be exercised without a misbehaving database.
package chaos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lendinglibrary/internal/store"
)

// Option configures a Store.
type Option func(*Store)

// WithConflicts makes the next n transactions fail with store.ErrConflict
// after their work ran, so the work is rolled back.
func WithConflicts(n int) Option {
	return func(s *Store) { s.conflicts = n }
}

// WithLatency delays the start of every transaction.
func WithLatency(d time.Duration) Option {
	return func(s *Store) { s.latency = d }
}

// WithPingError makes Ping fail with err.
func WithPingError(err error) Option {
	return func(s *Store) { s.pingErr = err }
}

// Store is a store.Store with faults injected into WithinTx and Ping.
type Store struct {
	store.Store

	tracer trace.Tracer

	mu        sync.Mutex
	conflicts int
	latency   time.Duration
	pingErr   error
	injected  int
}

func Wrap(s store.Store, opts ...Option) *Store {
	c := &Store{
		Store:  s,
		tracer: otel.Tracer("lendinglibrary/chaos"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Injected reports how many conflicts were injected so far.
func (s *Store) Injected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injected
}

func (s *Store) takeConflict() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts <= 0 {
		return false
	}
	s.conflicts--
	s.injected++
	return true
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	ctx, span := s.tracer.Start(ctx, "chaos.within_tx",
		trace.WithAttributes(attribute.Int64("chaos.latency_ms", s.latency.Milliseconds())),
	)
	defer span.End()

	if s.latency > 0 {
		span.AddEvent("injecting_latency")
		timer := time.NewTimer(s.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.takeConflict() {
			span.AddEvent("injecting_conflict")
			return fmt.Errorf("chaos: %w", store.ErrConflict)
		}
		return nil
	})
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.Store.Ping(ctx)
}
