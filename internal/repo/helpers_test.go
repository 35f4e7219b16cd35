package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/testutil"
)

// newTestTx opens a transaction against the test database. The transaction
// is rolled back when the test finishes, giving free per-test isolation.
func newTestTx(t *testing.T) pgx.Tx {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})
	return tx
}

// insertCar adds a car inside tx and returns its id.
func insertCar(t *testing.T, tx pgx.Tx, status domain.CarStatus, price string) int64 {
	t.Helper()
	const q = `
		INSERT INTO cars (brand, model, car_year, status, price_per_day)
		VALUES ('Test', 'Car', 2024, $1, $2)
		RETURNING id`

	var id int64
	err := tx.QueryRow(context.Background(), q, string(status), decimal.RequireFromString(price)).Scan(&id)
	require.NoError(t, err, "insert car")
	return id
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rentalFixture(carID int64, start, end time.Time) domain.Rental {
	return domain.Rental{
		CarID:       carID,
		ClientID:    "client-1",
		StartDate:   start,
		EndDate:     end,
		Status:      domain.RentalActive,
		PaymentID:   "ch_test",
		TotalAmount: decimal.RequireFromString("250.00"),
	}
}
