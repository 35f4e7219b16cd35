package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/internal/repo"
)

// DefaultOccupancyWindow is how far back the period starts when the caller
// gives no start date.
const DefaultOccupancyWindow = 30

var hundred = decimal.NewFromInt(100)

// ResolvePeriod fills in a missing end (today) and a missing start (end minus
// DefaultOccupancyWindow days). Returns domain.ErrInvalidRange when the
// resulting start is after the end.
func ResolvePeriod(start, end *time.Time, today time.Time) (domain.DateRange, error) {
	e := domain.Day(today)
	if end != nil {
		e = domain.Day(*end)
	}
	s := e.AddDate(0, 0, -DefaultOccupancyWindow)
	if start != nil {
		s = domain.Day(*start)
	}
	return checkPeriod(domain.DateRange{Start: s, End: e})
}

func checkPeriod(p domain.DateRange) (domain.DateRange, error) {
	p = domain.DateRange{Start: domain.Day(p.Start), End: domain.Day(p.End)}
	if p.Start.After(p.End) {
		return domain.DateRange{}, fmt.Errorf("%w (got %s)", domain.ErrInvalidRange, p)
	}
	return p, nil
}

// ComputeCarOccupancy derives the occupancy of car over period from its
// rentals. Only ACTIVE and COMPLETED rentals count. Each is clipped to the
// period; RentalCount includes qualifying rentals that fall outside it.
func ComputeCarOccupancy(car domain.Car, rentals []domain.Rental, period domain.DateRange) (domain.OccupancyRecord, error) {
	period, err := checkPeriod(period)
	if err != nil {
		return domain.OccupancyRecord{}, err
	}

	total := period.Days()
	rented, count := 0, 0
	for _, r := range rentals {
		if r.CarID != car.ID || !r.CountsTowardOccupancy() {
			continue
		}
		count++
		if clipped, ok := r.Range().Clip(period); ok {
			rented += clipped.Days()
		}
	}
	// Overlapping historical rows could sum past the period length.
	rented = min(rented, total)

	pct := decimal.NewFromInt(int64(rented)).Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)

	return domain.OccupancyRecord{
		CarID:               car.ID,
		Brand:               car.Brand,
		Model:               car.Model,
		Year:                car.Year,
		TotalDaysInPeriod:   total,
		RentedDays:          rented,
		OccupancyPercentage: pct.InexactFloat64(),
		RentalCount:         count,
	}, nil
}

// ComputeOccupancy returns one record per car, in the order of cars.
func ComputeOccupancy(cars []domain.Car, rentalsByCar map[int64][]domain.Rental, period domain.DateRange) ([]domain.OccupancyRecord, error) {
	period, err := checkPeriod(period)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OccupancyRecord, 0, len(cars))
	for _, car := range cars {
		rec, err := ComputeCarOccupancy(car, rentalsByCar[car.ID], period)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// OccupancyService loads snapshots of cars and rentals and aggregates them.
// It takes no locks.
type OccupancyService struct {
	cars    repo.CarRepo
	rentals repo.RentalRepo
	timeout time.Duration
	now     Clock
}

// NewOccupancyService constructs an OccupancyService. A nil clock means time.Now.
func NewOccupancyService(cars repo.CarRepo, rentals repo.RentalRepo, timeout time.Duration, now Clock) *OccupancyService {
	if now == nil {
		now = time.Now
	}
	return &OccupancyService{cars: cars, rentals: rentals, timeout: timeout, now: now}
}

// GetOccupancy reports every car over the period. Nil bounds take defaults.
// A failed read fails the whole report.
func (s *OccupancyService) GetOccupancy(ctx context.Context, start, end *time.Time) ([]domain.OccupancyRecord, error) {
	period, err := ResolvePeriod(start, end, s.now())
	if err != nil {
		return nil, fmt.Errorf("service.OccupancyService.GetOccupancy: %w", err)
	}

	var (
		cars    []domain.Car
		rentals []domain.Rental
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cars, err = call(gctx, s.timeout, s.cars.List)
		return err
	})
	g.Go(func() error {
		var err error
		rentals, err = call(gctx, s.timeout, s.rentals.FindAll)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service.OccupancyService.GetOccupancy: %w", err)
	}

	byCar := make(map[int64][]domain.Rental, len(cars))
	for _, r := range rentals {
		byCar[r.CarID] = append(byCar[r.CarID], r)
	}
	return ComputeOccupancy(cars, byCar, period)
}

// GetOccupancyForCar reports one car. Returns domain.ErrNotFound for an
// unknown car.
func (s *OccupancyService) GetOccupancyForCar(ctx context.Context, carID int64, start, end *time.Time) (domain.OccupancyRecord, error) {
	period, err := ResolvePeriod(start, end, s.now())
	if err != nil {
		return domain.OccupancyRecord{}, fmt.Errorf("service.OccupancyService.GetOccupancyForCar: %w", err)
	}

	var (
		car     domain.Car
		rentals []domain.Rental
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		car, err = call(gctx, s.timeout, func(ctx context.Context) (domain.Car, error) {
			return s.cars.GetByID(ctx, carID)
		})
		return err
	})
	g.Go(func() error {
		var err error
		rentals, err = call(gctx, s.timeout, func(ctx context.Context) ([]domain.Rental, error) {
			return s.rentals.FindByCarID(ctx, carID)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.OccupancyRecord{}, fmt.Errorf("service.OccupancyService.GetOccupancyForCar: %w", err)
	}
	return ComputeCarOccupancy(car, rentals, period)
}
