package domain

import "time"

// ReservationRequest is the input to the reservation workflow.
// PaymentMethod may be empty (DefaultPaymentMethod applies).
// IdempotencyKey may be empty; the workflow then generates one.
type ReservationRequest struct {
	CarID          int64
	ClientID       string
	StartDate      time.Time
	EndDate        time.Time
	PaymentMethod  string
	IdempotencyKey string
}

// ReservationState is a step of the reservation workflow.
type ReservationState int

const (
	StateValidating ReservationState = iota
	StateCheckingAvailability
	StatePricing
	StateAuthorizingPayment
	StateCommitting
	StateDone
	// StateRejected is terminal: no side effects were performed.
	StateRejected
	// StateFailedNeedsCompensation is terminal: payment succeeded but the
	// commit could not complete.
	StateFailedNeedsCompensation
)

var stateNames = [...]string{
	StateValidating:              "VALIDATING",
	StateCheckingAvailability:    "CHECKING_AVAILABILITY",
	StatePricing:                 "PRICING",
	StateAuthorizingPayment:      "AUTHORIZING_PAYMENT",
	StateCommitting:              "COMMITTING",
	StateDone:                    "DONE",
	StateRejected:                "REJECTED",
	StateFailedNeedsCompensation: "FAILED_NEEDS_COMPENSATION",
}

func (s ReservationState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can happen from s.
func (s ReservationState) Terminal() bool {
	return s == StateDone || s == StateRejected || s == StateFailedNeedsCompensation
}
