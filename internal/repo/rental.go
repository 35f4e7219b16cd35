package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// RentalRepo defines the persistence operations for Rentals.
// The service layer depends on this interface, not the Postgres implementation.
type RentalRepo interface {
	// Save inserts a new rental and returns the persisted record with the
	// DB-generated id and timestamps. Returns domain.ErrConflict when an
	// ACTIVE rental for the same car already covers any of the dates and
	// domain.ErrNotFound when the car does not exist.
	Save(ctx context.Context, rental domain.Rental) (domain.Rental, error)

	// GetByID retrieves a rental by id.
	// Returns domain.ErrNotFound if no rental with that ID exists.
	GetByID(ctx context.Context, id int64) (domain.Rental, error)

	// FindAll returns every rental ordered by id.
	FindAll(ctx context.Context) ([]domain.Rental, error)

	// FindByCarID returns every rental of a car, any status, ordered by start date.
	FindByCarID(ctx context.Context, carID int64) ([]domain.Rental, error)

	// FindByClientID returns every rental of a client ordered by start date.
	FindByClientID(ctx context.Context, clientID string) ([]domain.Rental, error)

	// FindByPaymentID returns the rentals recorded against a payment, any
	// status, ordered by id.
	FindByPaymentID(ctx context.Context, paymentID string) ([]domain.Rental, error)

	// FindActiveOverlapping returns the ACTIVE rentals of carID whose dates
	// intersect the closed range r.
	FindActiveOverlapping(ctx context.Context, carID int64, r domain.DateRange) ([]domain.Rental, error)

	// UpdateStatus sets a rental's status and returns the updated record.
	// Returns domain.ErrNotFound if no rental with that ID exists.
	UpdateStatus(ctx context.Context, id int64, status domain.RentalStatus) (domain.Rental, error)
}

// pgRentalRepo is the Postgres implementation of RentalRepo.
type pgRentalRepo struct {
	db db
}

// NewRentalRepo constructs a RentalRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewRentalRepo(db db) RentalRepo {
	return &pgRentalRepo{db: db}
}

const rentalColumns = `id, car_id, client_id, start_date, end_date, status, payment_id, total_amount, created_at, updated_at`

func (r *pgRentalRepo) Save(ctx context.Context, rental domain.Rental) (domain.Rental, error) {
	const q = `
		INSERT INTO rentals (car_id, client_id, start_date, end_date, status, payment_id, total_amount)
		VALUES (@car_id, @client_id, @start_date, @end_date, @status, @payment_id, @total_amount)
		RETURNING ` + rentalColumns

	args := pgx.NamedArgs{
		"car_id":       rental.CarID,
		"client_id":    rental.ClientID,
		"start_date":   domain.Day(rental.StartDate),
		"end_date":     domain.Day(rental.EndDate),
		"status":       string(rental.Status),
		"payment_id":   nullableText(rental.PaymentID),
		"total_amount": rental.TotalAmount,
	}

	result, err := scanRental(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Rental{}, fmt.Errorf("repo.RentalRepo.Save: %w", mapPgError(err))
	}
	return result, nil
}

func (r *pgRentalRepo) GetByID(ctx context.Context, id int64) (domain.Rental, error) {
	const q = `SELECT ` + rentalColumns + ` FROM rentals WHERE id = @id`

	result, err := scanRental(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Rental{}, fmt.Errorf("repo.RentalRepo.GetByID: %w", mapPgError(err))
	}
	return result, nil
}

func (r *pgRentalRepo) FindAll(ctx context.Context) ([]domain.Rental, error) {
	const q = `SELECT ` + rentalColumns + ` FROM rentals ORDER BY id`
	return r.list(ctx, "FindAll", q, nil)
}

func (r *pgRentalRepo) FindByCarID(ctx context.Context, carID int64) ([]domain.Rental, error) {
	const q = `SELECT ` + rentalColumns + ` FROM rentals WHERE car_id = @car_id ORDER BY start_date, id`
	return r.list(ctx, "FindByCarID", q, pgx.NamedArgs{"car_id": carID})
}

func (r *pgRentalRepo) FindByClientID(ctx context.Context, clientID string) ([]domain.Rental, error) {
	const q = `SELECT ` + rentalColumns + ` FROM rentals WHERE client_id = @client_id ORDER BY start_date, id`
	return r.list(ctx, "FindByClientID", q, pgx.NamedArgs{"client_id": clientID})
}

func (r *pgRentalRepo) FindByPaymentID(ctx context.Context, paymentID string) ([]domain.Rental, error) {
	const q = `SELECT ` + rentalColumns + ` FROM rentals WHERE payment_id = @payment_id ORDER BY id`
	return r.list(ctx, "FindByPaymentID", q, pgx.NamedArgs{"payment_id": paymentID})
}

// FindActiveOverlapping uses the closed-interval test
// start_date <= @end AND end_date >= @start.
func (r *pgRentalRepo) FindActiveOverlapping(ctx context.Context, carID int64, dr domain.DateRange) ([]domain.Rental, error) {
	const q = `
		SELECT ` + rentalColumns + `
		FROM rentals
		WHERE car_id = @car_id
		  AND status = 'ACTIVE'
		  AND start_date <= @end_date
		  AND end_date   >= @start_date
		ORDER BY start_date, id`

	args := pgx.NamedArgs{"car_id": carID, "start_date": dr.Start, "end_date": dr.End}
	return r.list(ctx, "FindActiveOverlapping", q, args)
}

func (r *pgRentalRepo) UpdateStatus(ctx context.Context, id int64, status domain.RentalStatus) (domain.Rental, error) {
	const q = `
		UPDATE rentals
		SET status     = @status,
		    updated_at = now()
		WHERE id = @id
		RETURNING ` + rentalColumns

	result, err := scanRental(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "status": string(status)}))
	if err != nil {
		return domain.Rental{}, fmt.Errorf("repo.RentalRepo.UpdateStatus: %w", mapPgError(err))
	}
	return result, nil
}

func (r *pgRentalRepo) list(ctx context.Context, op, q string, args pgx.NamedArgs) ([]domain.Rental, error) {
	var queryArgs []any
	if args != nil {
		queryArgs = append(queryArgs, args)
	}
	rows, err := r.db.Query(ctx, q, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("repo.RentalRepo.%s: %w", op, err)
	}
	rentals, err := collect(rows, scanRental)
	if err != nil {
		return nil, fmt.Errorf("repo.RentalRepo.%s: scan: %w", op, err)
	}
	return rentals, nil
}

// scanRental maps a single row into a domain.Rental, handling the nullable
// payment_id and the date columns.
func scanRental(s scanner) (domain.Rental, error) {
	var (
		rt        domain.Rental
		start     pgtype.Date
		end       pgtype.Date
		status    string
		paymentID pgtype.Text
	)

	err := s.Scan(&rt.ID, &rt.CarID, &rt.ClientID, &start, &end, &status,
		&paymentID, &rt.TotalAmount, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return domain.Rental{}, err
	}

	rt.StartDate = start.Time
	rt.EndDate = end.Time
	rt.Status = domain.RentalStatus(status)
	if paymentID.Valid {
		rt.PaymentID = paymentID.String
	}
	return rt, nil
}

// nullableText maps "" to SQL NULL.
func nullableText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
