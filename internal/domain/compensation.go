package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CompensationStatus tracks whether a compensation still has work to do.
type CompensationStatus string

const (
	CompensationPending  CompensationStatus = "PENDING"
	CompensationResolved CompensationStatus = "RESOLVED"
)

// Compensation describes the reverse actions owed after a reservation failed
// past payment authorization. Each flag is one outstanding step; a step is
// cleared once it has been carried out so retries never repeat it.
type Compensation struct {
	ID             int64
	RentalID       int64 // 0 when no rental was persisted
	CarID          int64
	PaymentID      string
	IdempotencyKey string
	Amount         decimal.Decimal
	Reason         string

	CancelRental bool
	RevertCar    bool
	Refund       bool

	Status    CompensationStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outstanding reports whether any reverse action is still owed.
func (c Compensation) Outstanding() bool {
	return c.CancelRental || c.RevertCar || c.Refund
}
