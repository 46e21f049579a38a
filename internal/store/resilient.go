package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/resilience"
)

// ResilientOptions configures ResilientIndex.
type ResilientOptions struct {
	Retry        resilience.RetryConfig
	Breaker      resilience.CircuitBreakerConfig
	FetchTimeout time.Duration
}

// ResilientIndex guards a remote IndexStore: every call runs under a
// per-attempt timeout, retryable failures are retried with backoff, and a
// circuit breaker fails fast while the backend is down. Errors that reach
// the caller wrap errors.ErrStoreUnavailable when they are transient.
type ResilientIndex struct {
	inner   IndexStore
	breaker *resilience.CircuitBreaker
	opts    ResilientOptions
}

// NewResilientIndex wraps inner. name labels the breaker in logs and metrics.
func NewResilientIndex(name string, inner IndexStore, opts ResilientOptions) *ResilientIndex {
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = apperrors.IsRetryable
	}
	if opts.Breaker.IsFailure == nil {
		opts.Breaker.IsFailure = apperrors.IsRetryable
	}
	return &ResilientIndex{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(name, opts.Breaker),
		opts:    opts,
	}
}

func (r *ResilientIndex) DocumentFrequency(ctx context.Context, term string) (int, error) {
	return call(ctx, r, "df:"+term, func(ctx context.Context) (int, error) {
		return r.inner.DocumentFrequency(ctx, term)
	})
}

func (r *ResilientIndex) ReadPostingList(ctx context.Context, term string) ([]Posting, error) {
	return call(ctx, r, "postings:"+term, func(ctx context.Context) ([]Posting, error) {
		return r.inner.ReadPostingList(ctx, term)
	})
}

// BreakerState exposes the breaker state for health checks.
func (r *ResilientIndex) BreakerState() resilience.State {
	return r.breaker.GetState()
}

func call[T any](ctx context.Context, r *ResilientIndex, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := resilience.Retry(ctx, op, r.opts.Retry, func() error {
		return r.breaker.Execute(func() error {
			v, err := resilience.CallWithTimeout(ctx, r.opts.FetchTimeout, op, fn)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
	})
	if err == nil {
		return out, nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || apperrors.IsRetryable(err) {
		if !errors.Is(err, apperrors.ErrStoreUnavailable) {
			err = apperrors.Unavailable(op, err)
		}
		return out, err
	}
	return out, fmt.Errorf("%s: %w", op, err)
}
