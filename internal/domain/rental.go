package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RentalStatus is the lifecycle state of a rental.
type RentalStatus string

const (
	RentalActive    RentalStatus = "ACTIVE"
	RentalCompleted RentalStatus = "COMPLETED"
	RentalCancelled RentalStatus = "CANCELLED"
)

// Rental is a reservation of one car for a closed range of dates.
// A rental is created ACTIVE together with a confirmed payment, so PaymentID
// is only empty on rentals loaded from legacy rows.
type Rental struct {
	ID          int64
	CarID       int64
	ClientID    string
	StartDate   time.Time
	EndDate     time.Time
	Status      RentalStatus
	PaymentID   string
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Range returns the rental's dates as a DateRange.
func (r Rental) Range() DateRange {
	return DateRange{Start: Day(r.StartDate), End: Day(r.EndDate)}
}

// BlocksCar reports whether the rental takes part in overlap conflicts.
// Only ACTIVE rentals do.
func (r Rental) BlocksCar() bool {
	return r.Status == RentalActive
}

// CountsTowardOccupancy reports whether the rental is included in occupancy
// statistics. ACTIVE and COMPLETED rentals are; CANCELLED ones are not.
func (r Rental) CountsTowardOccupancy() bool {
	return r.Status == RentalActive || r.Status == RentalCompleted
}
