package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repo and service functions when the requested
// car or rental does not exist.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails business rule validation
// (e.g. missing client id, end date before start date, unsupported payment
// method). It is always raised before any remote effect.
// Handlers should map this to HTTP 400.
var ErrValidation = errors.New("validation error")

// ErrInvalidRange is returned by the occupancy aggregator when the reporting
// period starts after it ends. It wraps ErrValidation so callers that only
// care about bad input can match either.
var ErrInvalidRange = fmt.Errorf("%w: start date must be before or equal to end date", ErrValidation)

// ErrConflict is returned when a car cannot be booked: it is not AVAILABLE,
// an ACTIVE rental overlaps the requested dates, or a conditional status
// update lost a race.
// Handlers should map this to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrPaymentDeclined is returned when the payment gateway answered FAILED.
// No rental is persisted and the car is untouched.
// Handlers should map this to HTTP 402.
var ErrPaymentDeclined = errors.New("payment declined")

// ErrUpstreamUnavailable is returned when a collaborator is unreachable or a
// call exceeded its timeout before any local side effect happened.
// Handlers should map this to HTTP 503.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrNeedsCompensation is returned when a payment was captured but the
// rental could not be committed. The compensator has been run (or queued) by
// the time a caller sees it.
// Handlers should map this to HTTP 502.
var ErrNeedsCompensation = errors.New("reservation failed after payment")
