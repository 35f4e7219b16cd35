package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// CarRepo is the car directory as seen by the reservation core: reads and a
// conditional status transition. Cars are created by migrations or by the
// fleet tooling, never by this service.
type CarRepo interface {
	// GetByID retrieves a single car.
	// Returns domain.ErrNotFound if no car with that ID exists.
	GetByID(ctx context.Context, id int64) (domain.Car, error)

	// List returns all cars ordered by id.
	List(ctx context.Context) ([]domain.Car, error)

	// UpdateStatus moves a car from expected to next and returns the updated
	// record. Returns domain.ErrConflict if the stored status is no longer
	// expected and domain.ErrNotFound if the car does not exist.
	UpdateStatus(ctx context.Context, id int64, expected, next domain.CarStatus) (domain.Car, error)
}

// pgCarRepo is the Postgres implementation of CarRepo.
type pgCarRepo struct {
	db db
}

// NewCarRepo constructs a CarRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewCarRepo(db db) CarRepo {
	return &pgCarRepo{db: db}
}

const carColumns = `id, brand, model, car_year, status, price_per_day`

func (r *pgCarRepo) GetByID(ctx context.Context, id int64) (domain.Car, error) {
	const q = `SELECT ` + carColumns + ` FROM cars WHERE id = @id`

	car, err := scanCar(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Car{}, fmt.Errorf("repo.CarRepo.GetByID: %w", mapPgError(err))
	}
	return car, nil
}

func (r *pgCarRepo) List(ctx context.Context) ([]domain.Car, error) {
	const q = `SELECT ` + carColumns + ` FROM cars ORDER BY id`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.CarRepo.List: %w", err)
	}
	cars, err := collect(rows, scanCar)
	if err != nil {
		return nil, fmt.Errorf("repo.CarRepo.List: scan: %w", err)
	}
	return cars, nil
}

// UpdateStatus is a compare-and-swap on the status column. When no row
// matches, a second lookup tells a lost race apart from a missing car.
func (r *pgCarRepo) UpdateStatus(ctx context.Context, id int64, expected, next domain.CarStatus) (domain.Car, error) {
	const q = `
		UPDATE cars
		SET status     = @next,
		    updated_at = now()
		WHERE id = @id AND status = @expected
		RETURNING ` + carColumns

	args := pgx.NamedArgs{"id": id, "expected": string(expected), "next": string(next)}

	car, err := scanCar(r.db.QueryRow(ctx, q, args))
	if err == nil {
		return car, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Car{}, fmt.Errorf("repo.CarRepo.UpdateStatus: %w", mapPgError(err))
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return domain.Car{}, fmt.Errorf("repo.CarRepo.UpdateStatus: %w", err)
	}
	return domain.Car{}, fmt.Errorf("repo.CarRepo.UpdateStatus: %w: car %d is %s, expected %s",
		domain.ErrConflict, id, current.Status, expected)
}

func scanCar(s scanner) (domain.Car, error) {
	var (
		c      domain.Car
		status string
	)
	if err := s.Scan(&c.ID, &c.Brand, &c.Model, &c.Year, &status, &c.PricePerDay); err != nil {
		return domain.Car{}, err
	}
	c.Status = domain.CarStatus(status)
	return c, nil
}
