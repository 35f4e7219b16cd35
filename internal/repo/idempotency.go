package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// PendingStaleAfter is how long an in-flight marker blocks its key. After
// that a request with the same body may take the key over, which frees keys
// left behind by a crashed instance.
const PendingStaleAfter = 5 * time.Minute

// IdempotencyRepo stores responses by (scope, key).
type IdempotencyRepo interface {
	// Get returns the stored response or domain.ErrNotFound.
	Get(ctx context.Context, scope, key string) (domain.StoredResponse, error)

	// Reserve claims (scope, key) with an in-flight marker. When the key is
	// already held or completed, reserved is false and existing is the row.
	Reserve(ctx context.Context, scope, key, hash string) (existing domain.StoredResponse, reserved bool, err error)

	// Complete stores the response on a reserved key.
	Complete(ctx context.Context, resp domain.StoredResponse) error

	// Release drops an in-flight marker so the key can be retried.
	// Completed responses are never removed.
	Release(ctx context.Context, scope, key string) error
}

type pgIdempotencyRepo struct {
	db db
}

// NewIdempotencyRepo constructs an IdempotencyRepo backed by the provided db connection.
func NewIdempotencyRepo(db db) IdempotencyRepo {
	return &pgIdempotencyRepo{db: db}
}

func (r *pgIdempotencyRepo) Get(ctx context.Context, scope, key string) (domain.StoredResponse, error) {
	const q = `
		SELECT scope, key_id, request_hash, response_status, response_body, created_at
		FROM idempotency_keys
		WHERE scope = @scope AND key_id = @key`

	var s domain.StoredResponse
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"scope": scope, "key": key}).
		Scan(&s.Scope, &s.Key, &s.RequestHash, &s.Status, &s.Body, &s.CreatedAt)
	if err != nil {
		return domain.StoredResponse{}, fmt.Errorf("repo.IdempotencyRepo.Get: %w", mapPgError(err))
	}
	return s, nil
}

// Reserve inserts the marker, or takes over a stale marker left by the same
// request body. A row that vanishes between the insert and the read is a
// released marker, so the claim is tried once more.
func (r *pgIdempotencyRepo) Reserve(ctx context.Context, scope, key, hash string) (domain.StoredResponse, bool, error) {
	const q = `
		INSERT INTO idempotency_keys (scope, key_id, request_hash)
		VALUES (@scope, @key, @hash)
		ON CONFLICT (scope, key_id) DO UPDATE
		SET created_at = now()
		WHERE idempotency_keys.response_status = 0
		  AND idempotency_keys.request_hash = EXCLUDED.request_hash
		  AND idempotency_keys.created_at < now() - make_interval(secs => @stale_secs)
		RETURNING true`

	args := pgx.NamedArgs{"scope": scope, "key": key, "hash": hash, "stale_secs": PendingStaleAfter.Seconds()}
	for range 2 {
		var claimed bool
		err := r.db.QueryRow(ctx, q, args).Scan(&claimed)
		if err == nil {
			return domain.StoredResponse{}, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.StoredResponse{}, false, fmt.Errorf("repo.IdempotencyRepo.Reserve: %w", mapPgError(err))
		}

		existing, err := r.Get(ctx, scope, key)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.StoredResponse{}, false, fmt.Errorf("repo.IdempotencyRepo.Reserve: %w", err)
		}
	}
	return domain.StoredResponse{}, false, fmt.Errorf("repo.IdempotencyRepo.Reserve: %w: key %q keeps changing hands",
		domain.ErrConflict, key)
}

func (r *pgIdempotencyRepo) Complete(ctx context.Context, resp domain.StoredResponse) error {
	const q = `
		UPDATE idempotency_keys
		SET response_status = @status,
		    response_body   = @body
		WHERE scope = @scope AND key_id = @key AND response_status = 0`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"scope":  resp.Scope,
		"key":    resp.Key,
		"status": resp.Status,
		"body":   resp.Body,
	})
	if err != nil {
		return fmt.Errorf("repo.IdempotencyRepo.Complete: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.IdempotencyRepo.Complete: %w: no in-flight marker for key %q", domain.ErrNotFound, resp.Key)
	}
	return nil
}

func (r *pgIdempotencyRepo) Release(ctx context.Context, scope, key string) error {
	const q = `DELETE FROM idempotency_keys WHERE scope = @scope AND key_id = @key AND response_status = 0`

	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"scope": scope, "key": key}); err != nil {
		return fmt.Errorf("repo.IdempotencyRepo.Release: %w", mapPgError(err))
	}
	return nil
}
