// Package events publishes rental lifecycle events to a topic exchange.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys.
const (
	RentalCreated              = "rental.created"
	RentalCompensationRequired = "rental.compensation_required"
	RentalCompensated          = "rental.compensated"
)

// Publisher sends v as JSON under routingKey.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, v any) error
	Close() error
}

// RentalCreatedEvent is published once a reservation is committed.
type RentalCreatedEvent struct {
	RentalID    int64           `json:"rentalId"`
	CarID       int64           `json:"carId"`
	ClientID    string          `json:"clientId"`
	StartDate   string          `json:"startDate"`
	EndDate     string          `json:"endDate"`
	PaymentID   string          `json:"paymentId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// CompensationEvent is published when a reservation failed after payment,
// and again once every reverse action has been carried out.
type CompensationEvent struct {
	CompensationID int64           `json:"compensationId,omitempty"`
	RentalID       int64           `json:"rentalId,omitempty"`
	CarID          int64           `json:"carId"`
	PaymentID      string          `json:"paymentId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason"`
	Pending        []string        `json:"pending,omitempty"`
	OccurredAt     time.Time       `json:"occurredAt"`
}
