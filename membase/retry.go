package membase

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/NethermindEth/eternalgov/core"
	"go.uber.org/zap"
)

// RetryStore wraps a Store with bounded exponential backoff
type RetryStore struct {
	inner      Store
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
}

func WithRetry(s Store, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *RetryStore {
	if maxRetries < 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryStore{inner: s, maxRetries: maxRetries, baseDelay: baseDelay, maxDelay: 5 * time.Second, logger: logger}
}

func (r *RetryStore) Write(ctx context.Context, collection string, rec Record) (string, error) {
	var id string
	err := r.do(ctx, "write", func() error {
		var err error
		id, err = r.inner.Write(ctx, collection, rec)
		return err
	})
	return id, err
}

func (r *RetryStore) Search(ctx context.Context, collection, query string, k int) ([]Hit, error) {
	var hits []Hit
	err := r.do(ctx, "search", func() error {
		var err error
		hits, err = r.inner.Search(ctx, collection, query, k)
		return err
	})
	return hits, err
}

func (r *RetryStore) List(ctx context.Context, collection string) ([]Record, error) {
	var recs []Record
	err := r.do(ctx, "list", func() error {
		var err error
		recs, err = r.inner.List(ctx, collection)
		return err
	})
	return recs, err
}

func (r *RetryStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := r.do(ctx, "count", func() error {
		var err error
		n, err = r.inner.Count(ctx, collection)
		return err
	})
	return n, err
}

func (r *RetryStore) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		attempts++
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == r.maxRetries {
			break
		}
		r.logger.Warn("membase call failed, retrying",
			zap.String("op", op), zap.Int("attempt", attempts), zap.Error(lastErr))
		if err := r.backoff(ctx, attempt); err != nil {
			break
		}
	}
	return &core.ExternalServiceError{Service: "membase", Op: op, Attempts: attempts, Err: lastErr}
}

func isRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) && !core.IsValidation(err)
}

func (r *RetryStore) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(r.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
