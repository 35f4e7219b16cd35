package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/internal/repo"
)

// AvailabilityGate decides whether a car can be booked for a date range.
// It never mutates anything.
type AvailabilityGate struct {
	cars    repo.CarRepo
	rentals repo.RentalRepo
	timeout time.Duration
	now     Clock
}

// NewAvailabilityGate constructs an AvailabilityGate. A nil clock means time.Now.
func NewAvailabilityGate(cars repo.CarRepo, rentals repo.RentalRepo, timeout time.Duration, now Clock) *AvailabilityGate {
	if now == nil {
		now = time.Now
	}
	return &AvailabilityGate{cars: cars, rentals: rentals, timeout: timeout, now: now}
}

// Check returns the car snapshot to price against when carID is bookable for r.
//
// Returns domain.ErrValidation when r starts in the past, domain.ErrNotFound
// for an unknown car, and domain.ErrConflict when the car is not AVAILABLE
// or an ACTIVE rental overlaps r.
func (g *AvailabilityGate) Check(ctx context.Context, carID int64, r domain.DateRange) (domain.Car, error) {
	today := domain.Day(g.now())
	if r.Start.Before(today) {
		return domain.Car{}, fmt.Errorf("service.AvailabilityGate.Check: %w: start date %s is in the past",
			domain.ErrValidation, r.Start.Format(domain.DateLayout))
	}

	car, err := call(ctx, g.timeout, func(ctx context.Context) (domain.Car, error) {
		return g.cars.GetByID(ctx, carID)
	})
	if err != nil {
		return domain.Car{}, fmt.Errorf("service.AvailabilityGate.Check: %w", err)
	}
	if car.Status != domain.CarAvailable {
		return domain.Car{}, fmt.Errorf("service.AvailabilityGate.Check: %w: car %d is %s",
			domain.ErrConflict, carID, car.Status)
	}

	if err := g.Revalidate(ctx, carID, r); err != nil {
		return domain.Car{}, err
	}
	return car, nil
}

// Revalidate re-checks only the overlap rule. The workflow runs it under the
// car lock immediately before persisting the rental.
func (g *AvailabilityGate) Revalidate(ctx context.Context, carID int64, r domain.DateRange) error {
	overlapping, err := call(ctx, g.timeout, func(ctx context.Context) ([]domain.Rental, error) {
		return g.rentals.FindActiveOverlapping(ctx, carID, r)
	})
	if err != nil {
		return fmt.Errorf("service.AvailabilityGate.Revalidate: %w", err)
	}
	if len(overlapping) > 0 {
		return fmt.Errorf("service.AvailabilityGate.Revalidate: %w: car %d is already booked for %s (rental %d)",
			domain.ErrConflict, carID, overlapping[0].Range(), overlapping[0].ID)
	}
	return nil
}
