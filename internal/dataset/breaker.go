package dataset

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sony/gobreaker/v2"

	"rainpoint/internal/types"
)

// BreakerSource wraps a Source with a circuit breaker so that a remote
// store that is down does not absorb the full timeout on every horizon of
// every query. Deterministic failures (NotFound, Malformed) never trip the
// breaker: a missing file will not resolve itself and is not an
// availability signal.
type BreakerSource struct {
	inner   Source
	breaker *gobreaker.CircuitBreaker[any]
}

// NewBreakerSource wraps the given source with a named circuit breaker.
func NewBreakerSource(inner Source, name string) *BreakerSource {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return !isAvailabilityError(err)
		},
	})
	return &BreakerSource{inner: inner, breaker: cb}
}

// Open delegates to the wrapped source through the breaker.
func (s *BreakerSource) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	v, err := s.breaker.Execute(func() (any, error) {
		return s.inner.Open(ctx, id)
	})
	if err != nil {
		return nil, mapBreakerError(err)
	}
	return v.(io.ReadCloser), nil
}

// Fingerprint delegates to the wrapped source through the breaker.
func (s *BreakerSource) Fingerprint(ctx context.Context, id string) (string, error) {
	v, err := s.breaker.Execute(func() (any, error) {
		return s.inner.Fingerprint(ctx, id)
	})
	if err != nil {
		return "", mapBreakerError(err)
	}
	return v.(string), nil
}

// isAvailabilityError reports whether the error indicates the backing store
// is unavailable (as opposed to the requested dataset being absent or
// unparseable).
func isAvailabilityError(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == types.ErrCodeUpstreamSource
	}
	// Non-AppError failures from a source are unexpected transport errors.
	return err != nil
}

// mapBreakerError translates breaker-open states into the upstream error
// taxonomy; all other errors pass through unchanged.
func mapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			"circuit breaker is open; dataset store unavailable",
			err,
		)
	}
	return err
}
