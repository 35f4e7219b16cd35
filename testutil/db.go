// Package testutil holds the database fixtures shared by the car rental
// integration tests. Everything here skips the calling test when
// TEST_DATABASE_URL is unset, so `go test ./...` stays green without Postgres.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/pkordes/car-rental/backend/migrations"
)

// DatabaseURLEnv names the variable pointing at a disposable Postgres.
const DatabaseURLEnv = "TEST_DATABASE_URL"

// Tables lists every table the migrations create, dependents first, so it
// doubles as a safe truncation order.
var Tables = []string{"idempotency_keys", "compensations", "rentals", "cars"}

// NewPool connects to the test database and closes the pool when the test
// ends. The schema is whatever the caller's TestMain migrated.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool, err := openPool(context.Background(), databaseURL(t))
	if err != nil {
		t.Fatalf("testutil.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// NewSQLDB wraps a test pool in database/sql for goose.
func NewSQLDB(t *testing.T) *sql.DB {
	t.Helper()

	db := stdlib.OpenDBFromPool(NewPool(t))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Truncate empties every car rental table and resets their id sequences.
// The seeded fleet goes too; tests that need cars insert their own.
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	q := "TRUNCATE " + strings.Join(Tables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := pool.Exec(context.Background(), q); err != nil {
		t.Fatalf("testutil.Truncate: %v", err)
	}
}

// MustMigrate applies every pending migration to dsn. It is meant for
// TestMain, where no *testing.T exists, and panics on failure.
func MustMigrate(dsn string) {
	ctx := context.Background()
	pool, err := openPool(ctx, dsn)
	if err != nil {
		panic("testutil.MustMigrate: " + err.Error())
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if _, err := migrations.Up(ctx, db); err != nil {
		panic("testutil.MustMigrate: " + err.Error())
	}
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", DatabaseURLEnv, err)
	}
	// Integration tests hold one transaction each; a few connections suffice.
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func databaseURL(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv(DatabaseURLEnv)
	if dsn == "" {
		t.Skip(DatabaseURLEnv + " not set; skipping integration test")
	}
	return dsn
}
