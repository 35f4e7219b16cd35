package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentMethod is a supported payment provider.
type PaymentMethod string

const (
	MethodStripe PaymentMethod = "stripe"
	MethodPayPal PaymentMethod = "paypal"

	// DefaultPaymentMethod is used when a reservation request names none.
	DefaultPaymentMethod = MethodStripe
)

// ParsePaymentMethod normalises s case-insensitively.
// Returns ErrValidation for anything other than "stripe" or "paypal".
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodStripe, MethodPayPal:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unsupported payment method %q, use 'stripe' or 'paypal'", ErrValidation, s)
	}
}

// PaymentStatus is the outcome reported by the payment gateway.
type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// PaymentResult is the gateway's answer to an authorization request.
// PaymentID is set iff Status is PaymentSuccess. It is never persisted as is;
// only the payment id ends up on the rental.
type PaymentResult struct {
	PaymentID string          `json:"paymentId,omitempty"`
	Status    PaymentStatus   `json:"status"`
	Message   string          `json:"message"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"paymentMethod"`
}

// Succeeded reports whether the payment was captured.
func (p PaymentResult) Succeeded() bool {
	return p.Status == PaymentSuccess && p.PaymentID != ""
}
