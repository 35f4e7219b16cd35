// Package payment talks to the payment provider. It defines the Gateway
// contract the reservation workflow depends on, an HTTP client for the
// remote payment service, and an in-process simulator that implements the
// same contract with an injectable approval decision.
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// Gateway authorizes and refunds charges.
//
// Authorize is idempotent per IdempotencyKey: repeating a request with the
// same key returns the first result and never charges twice. A declined
// charge is a successful call returning a FAILED result, not an error.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (domain.PaymentResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// AuthorizeRequest asks the provider to charge a client.
type AuthorizeRequest struct {
	IdempotencyKey string
	Amount         decimal.Decimal
	ClientID       string
	Description    string
	Method         string
}

// Validate normalises the payment method and checks the request before any
// network call. Returns domain.ErrValidation on bad input.
func (r AuthorizeRequest) Validate() (AuthorizeRequest, error) {
	method, err := domain.ParsePaymentMethod(r.Method)
	if err != nil {
		return AuthorizeRequest{}, err
	}
	r.Method = string(method)
	switch {
	case strings.TrimSpace(r.IdempotencyKey) == "":
		return AuthorizeRequest{}, fmt.Errorf("%w: idempotency key is required", domain.ErrValidation)
	case !r.Amount.IsPositive():
		return AuthorizeRequest{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	case strings.TrimSpace(r.ClientID) == "":
		return AuthorizeRequest{}, fmt.Errorf("%w: client id is required", domain.ErrValidation)
	case strings.TrimSpace(r.Description) == "":
		return AuthorizeRequest{}, fmt.Errorf("%w: description is required", domain.ErrValidation)
	}
	return r, nil
}

// RefundRequest reverses a captured payment in full.
type RefundRequest struct {
	IdempotencyKey string
	PaymentID      string
	Amount         decimal.Decimal
	Reason         string
}

// Validate checks the request before any network call.
func (r RefundRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.IdempotencyKey) == "":
		return fmt.Errorf("%w: idempotency key is required", domain.ErrValidation)
	case strings.TrimSpace(r.PaymentID) == "":
		return fmt.Errorf("%w: payment id is required", domain.ErrValidation)
	}
	return nil
}

// RefundStatus is the provider's answer to a refund.
type RefundStatus string

const RefundSucceeded RefundStatus = "REFUNDED"

// RefundResult describes a completed refund.
type RefundResult struct {
	RefundID  string          `json:"refundId"`
	PaymentID string          `json:"paymentId"`
	Amount    decimal.Decimal `json:"amount"`
	Status    RefundStatus    `json:"status"`
}
