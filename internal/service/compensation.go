package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/internal/events"
	"github.com/pkordes/car-rental/backend/internal/payment"
	"github.com/pkordes/car-rental/backend/internal/repo"
)

// retryBatch caps how many pending compensations one RetryPending run loads.
const retryBatch = 50

// Compensator undoes the effects of a reservation that failed after its
// payment was captured: it cancels the rental, reverts the car and refunds.
// Steps that cannot be completed are stored and retried later.
type Compensator struct {
	rentals  repo.RentalRepo
	cars     repo.CarRepo
	payments payment.Gateway
	store    repo.CompensationRepo
	events   events.Publisher
	log      *slog.Logger
	timeout  time.Duration
	now      Clock
}

// NewCompensator constructs a Compensator.
func NewCompensator(
	rentals repo.RentalRepo,
	cars repo.CarRepo,
	payments payment.Gateway,
	store repo.CompensationRepo,
	pub events.Publisher,
	log *slog.Logger,
	timeout time.Duration,
) *Compensator {
	return &Compensator{
		rentals:  rentals,
		cars:     cars,
		payments: payments,
		store:    store,
		events:   pub,
		log:      log,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Compensate runs every outstanding step of c. If any step fails the
// remainder is stored as a PENDING compensation and the step error is
// returned; the caller does not need to retry.
func (c *Compensator) Compensate(ctx context.Context, comp domain.Compensation) error {
	c.log.ErrorContext(ctx, "reservation needs compensation",
		"car_id", comp.CarID,
		"rental_id", comp.RentalID,
		"payment_id", comp.PaymentID,
		"idempotency_key", comp.IdempotencyKey,
		"amount", comp.Amount.StringFixed(2),
		"reason", comp.Reason,
	)
	c.publish(ctx, events.RentalCompensationRequired, comp)

	comp, err := c.run(ctx, comp)
	if err == nil {
		c.publish(ctx, events.RentalCompensated, comp)
		return nil
	}

	comp.Status = domain.CompensationPending
	comp.Attempts = 1
	comp.LastError = err.Error()
	stored, storeErr := c.store.Create(ctx, comp)
	if storeErr != nil {
		c.log.ErrorContext(ctx, "compensation could not be stored; manual action required",
			"car_id", comp.CarID, "payment_id", comp.PaymentID, "err", storeErr)
		return fmt.Errorf("service.Compensator.Compensate: %w", errors.Join(err, storeErr))
	}
	c.log.WarnContext(ctx, "compensation queued for retry",
		"compensation_id", stored.ID, "pending", pendingSteps(stored), "err", err)
	return fmt.Errorf("service.Compensator.Compensate: %w", err)
}

// KeyRetired reports whether a compensation was ever recorded for the
// reservation idempotency key.
func (c *Compensator) KeyRetired(ctx context.Context, key string) (bool, error) {
	retired, err := call(ctx, c.timeout, func(ctx context.Context) (bool, error) {
		return c.store.ExistsForKey(ctx, key)
	})
	if err != nil {
		return false, fmt.Errorf("service.Compensator.KeyRetired: %w", err)
	}
	return retired, nil
}

// RetryPending re-runs stored compensations and records the outcome of
// each. It returns how many were fully resolved.
func (c *Compensator) RetryPending(ctx context.Context) (int, error) {
	pending, err := c.store.ListPending(ctx, retryBatch)
	if err != nil {
		return 0, fmt.Errorf("service.Compensator.RetryPending: %w", err)
	}

	resolved := 0
	var errs []error
	for _, comp := range pending {
		comp.Attempts++
		var runErr error
		comp, runErr = c.run(ctx, comp)
		if runErr == nil {
			comp.Status = domain.CompensationResolved
			comp.LastError = ""
		} else {
			comp.LastError = runErr.Error()
		}

		if _, err := c.store.Update(ctx, comp); err != nil {
			errs = append(errs, err)
			continue
		}
		if runErr != nil {
			c.log.WarnContext(ctx, "compensation retry failed",
				"compensation_id", comp.ID, "attempts", comp.Attempts, "pending", pendingSteps(comp), "err", runErr)
			continue
		}
		resolved++
		c.log.InfoContext(ctx, "compensation resolved", "compensation_id", comp.ID, "attempts", comp.Attempts)
		c.publish(ctx, events.RentalCompensated, comp)
	}

	if len(errs) > 0 {
		return resolved, fmt.Errorf("service.Compensator.RetryPending: %w", errors.Join(errs...))
	}
	return resolved, nil
}

// run attempts every outstanding step, clearing each flag once its step is
// done. A failed step does not stop the others: the refund must go out even
// if the rental row could not be cancelled.
func (c *Compensator) run(ctx context.Context, comp domain.Compensation) (domain.Compensation, error) {
	var errs []error

	if comp.CancelRental {
		done, err := c.cancelRental(ctx, comp)
		switch {
		case err != nil:
			errs = append(errs, err)
		case done:
			comp.CancelRental = false
		default:
			errs = append(errs, fmt.Errorf("cancel rental for payment %s: no rental recorded yet", comp.PaymentID))
		}
	}

	if comp.RevertCar {
		_, err := call(ctx, c.timeout, func(ctx context.Context) (domain.Car, error) {
			return c.cars.UpdateStatus(ctx, comp.CarID, domain.CarRented, domain.CarAvailable)
		})
		switch {
		// A conflict means the car is no longer RENTED: nothing to revert.
		case err == nil, errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
			comp.RevertCar = false
		default:
			errs = append(errs, fmt.Errorf("revert car %d: %w", comp.CarID, err))
		}
	}

	if comp.Refund {
		_, err := call(ctx, c.timeout, func(ctx context.Context) (payment.RefundResult, error) {
			return c.payments.Refund(ctx, payment.RefundRequest{
				IdempotencyKey: refundKey(comp.IdempotencyKey),
				PaymentID:      comp.PaymentID,
				Amount:         comp.Amount,
				Reason:         comp.Reason,
			})
		})
		if err == nil {
			comp.Refund = false
		} else {
			errs = append(errs, fmt.Errorf("refund payment %s: %w", comp.PaymentID, err))
		}
	}

	return comp, errors.Join(errs...)
}

// cancelRental cancels the rental behind comp. Without a rental id the save
// outcome was unknown, so every ACTIVE rental carrying the payment id is
// cancelled. Finding none is only conclusive on a retry (Attempts > 0): on
// the inline run an in-flight insert may still land.
func (c *Compensator) cancelRental(ctx context.Context, comp domain.Compensation) (bool, error) {
	ids := []int64{comp.RentalID}
	if comp.RentalID == 0 {
		if comp.PaymentID == "" {
			return true, nil
		}
		found, err := call(ctx, c.timeout, func(ctx context.Context) ([]domain.Rental, error) {
			return c.rentals.FindByPaymentID(ctx, comp.PaymentID)
		})
		if err != nil {
			return false, fmt.Errorf("find rentals for payment %s: %w", comp.PaymentID, err)
		}
		ids = ids[:0]
		for _, r := range found {
			if r.Status == domain.RentalActive {
				ids = append(ids, r.ID)
			}
		}
		if len(ids) == 0 {
			return comp.Attempts > 0, nil
		}
	}

	for _, id := range ids {
		_, err := call(ctx, c.timeout, func(ctx context.Context) (domain.Rental, error) {
			return c.rentals.UpdateStatus(ctx, id, domain.RentalCancelled)
		})
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return false, fmt.Errorf("cancel rental %d: %w", id, err)
		}
	}
	return true, nil
}

func (c *Compensator) publish(ctx context.Context, key string, comp domain.Compensation) {
	ev := events.CompensationEvent{
		CompensationID: comp.ID,
		RentalID:       comp.RentalID,
		CarID:          comp.CarID,
		PaymentID:      comp.PaymentID,
		IdempotencyKey: comp.IdempotencyKey,
		Amount:         comp.Amount,
		Reason:         comp.Reason,
		Pending:        pendingSteps(comp),
		OccurredAt:     c.now().UTC(),
	}
	if err := c.events.Publish(ctx, key, ev); err != nil {
		c.log.WarnContext(ctx, "event publish failed", "routing_key", key, "err", err)
	}
}

func refundKey(idempotencyKey string) string { return "refund:" + idempotencyKey }

func pendingSteps(comp domain.Compensation) []string {
	var steps []string
	if comp.CancelRental {
		steps = append(steps, "cancel_rental")
	}
	if comp.RevertCar {
		steps = append(steps, "revert_car")
	}
	if comp.Refund {
		steps = append(steps, "refund")
	}
	return steps
}
