// Package service contains the business logic of the car rental backend: the
// reservation workflow, its compensation path, and occupancy reporting.
// No SQL lives here; services depend on repo, payment and lock interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

// DefaultUpstreamTimeout bounds a single remote call when none is configured.
const DefaultUpstreamTimeout = 5 * time.Second

// call runs fn under a per-call timeout and classifies its error.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, classify(err)
	}
	return v, nil
}

// classify keeps domain sentinels and caller cancellation intact and turns
// everything else (timeouts, broken connections, unknown driver errors) into
// ErrUpstreamUnavailable.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrPaymentDeclined),
		errors.Is(err, domain.ErrUpstreamUnavailable),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
}
