package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// CompensationRepo stores compensations that could not be completed
// immediately so a background job can retry them.
type CompensationRepo interface {
	// Create inserts a PENDING compensation and returns it with its id.
	Create(ctx context.Context, c domain.Compensation) (domain.Compensation, error)

	// ListPending returns up to limit PENDING compensations, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.Compensation, error)

	// Update persists the step flags, status, attempts and last error of c.
	// Returns domain.ErrNotFound if no compensation with that ID exists.
	Update(ctx context.Context, c domain.Compensation) (domain.Compensation, error)

	// ExistsForKey reports whether any compensation, pending or resolved, was
	// recorded for the reservation idempotency key.
	ExistsForKey(ctx context.Context, idempotencyKey string) (bool, error)
}

// pgCompensationRepo is the Postgres implementation of CompensationRepo.
type pgCompensationRepo struct {
	db db
}

// NewCompensationRepo constructs a CompensationRepo backed by the provided db connection.
func NewCompensationRepo(db db) CompensationRepo {
	return &pgCompensationRepo{db: db}
}

const compensationColumns = `id, rental_id, car_id, payment_id, idempotency_key, amount, reason,
	cancel_rental, revert_car, refund, status, attempts, last_error, created_at, updated_at`

func (r *pgCompensationRepo) Create(ctx context.Context, c domain.Compensation) (domain.Compensation, error) {
	const q = `
		INSERT INTO compensations (rental_id, car_id, payment_id, idempotency_key, amount, reason,
		                           cancel_rental, revert_car, refund, status, attempts, last_error)
		VALUES (@rental_id, @car_id, @payment_id, @idempotency_key, @amount, @reason,
		        @cancel_rental, @revert_car, @refund, 'PENDING', @attempts, @last_error)
		RETURNING ` + compensationColumns

	args := pgx.NamedArgs{
		"rental_id":       pgtype.Int8{Int64: c.RentalID, Valid: c.RentalID != 0},
		"car_id":          c.CarID,
		"payment_id":      c.PaymentID,
		"idempotency_key": c.IdempotencyKey,
		"amount":          c.Amount,
		"reason":          c.Reason,
		"cancel_rental":   c.CancelRental,
		"revert_car":      c.RevertCar,
		"refund":          c.Refund,
		"attempts":        c.Attempts,
		"last_error":      c.LastError,
	}

	result, err := scanCompensation(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Compensation{}, fmt.Errorf("repo.CompensationRepo.Create: %w", mapPgError(err))
	}
	return result, nil
}

func (r *pgCompensationRepo) ListPending(ctx context.Context, limit int) ([]domain.Compensation, error) {
	const q = `
		SELECT ` + compensationColumns + `
		FROM compensations
		WHERE status = 'PENDING'
		ORDER BY created_at, id
		LIMIT @limit`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("repo.CompensationRepo.ListPending: %w", err)
	}
	out, err := collect(rows, scanCompensation)
	if err != nil {
		return nil, fmt.Errorf("repo.CompensationRepo.ListPending: scan: %w", err)
	}
	return out, nil
}

func (r *pgCompensationRepo) Update(ctx context.Context, c domain.Compensation) (domain.Compensation, error) {
	const q = `
		UPDATE compensations
		SET cancel_rental = @cancel_rental,
		    revert_car    = @revert_car,
		    refund        = @refund,
		    status        = @status,
		    attempts      = @attempts,
		    last_error    = @last_error,
		    updated_at    = now()
		WHERE id = @id
		RETURNING ` + compensationColumns

	args := pgx.NamedArgs{
		"id":            c.ID,
		"cancel_rental": c.CancelRental,
		"revert_car":    c.RevertCar,
		"refund":        c.Refund,
		"status":        string(c.Status),
		"attempts":      c.Attempts,
		"last_error":    c.LastError,
	}

	result, err := scanCompensation(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Compensation{}, fmt.Errorf("repo.CompensationRepo.Update: %w", mapPgError(err))
	}
	return result, nil
}

func (r *pgCompensationRepo) ExistsForKey(ctx context.Context, idempotencyKey string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM compensations WHERE idempotency_key = @key)`

	var exists bool
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"key": idempotencyKey}).Scan(&exists); err != nil {
		return false, fmt.Errorf("repo.CompensationRepo.ExistsForKey: %w", err)
	}
	return exists, nil
}

func scanCompensation(s scanner) (domain.Compensation, error) {
	var (
		c        domain.Compensation
		rentalID pgtype.Int8
		status   string
	)
	err := s.Scan(&c.ID, &rentalID, &c.CarID, &c.PaymentID, &c.IdempotencyKey, &c.Amount, &c.Reason,
		&c.CancelRental, &c.RevertCar, &c.Refund, &status, &c.Attempts, &c.LastError,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Compensation{}, err
	}
	if rentalID.Valid {
		c.RentalID = rentalID.Int64
	}
	c.Status = domain.CompensationStatus(status)
	return c, nil
}
