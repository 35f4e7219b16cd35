// Package domain contains the core data types for the car rental backend.
// It is imported by every other internal package (repo, service, payment,
// handler) and holds no I/O.
package domain

import "github.com/shopspring/decimal"

// CarStatus is the availability state owned by the car directory.
type CarStatus string

const (
	CarAvailable CarStatus = "AVAILABLE"
	CarRented    CarStatus = "RENTED"
)

// Valid reports whether s is one of the known car states.
func (s CarStatus) Valid() bool {
	return s == CarAvailable || s == CarRented
}

// Car is a rentable vehicle. The reservation core never creates or deletes
// cars; it only reads them and requests status transitions.
type Car struct {
	ID          int64           `json:"id"`
	Brand       string          `json:"brand"`
	Model       string          `json:"model"`
	Year        int             `json:"year"`
	Status      CarStatus       `json:"status"`
	PricePerDay decimal.Decimal `json:"pricePerDay"`
}

// CarFilter narrows a car listing. Zero fields match every car.
type CarFilter struct {
	// Status is matched case-insensitively against AVAILABLE or RENTED.
	Status string
	// Brand is matched case-insensitively.
	Brand string
}
