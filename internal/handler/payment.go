package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/internal/payment"
)

// PaymentGateway is the subset of payment.Gateway the payment service exposes.
type PaymentGateway interface {
	Authorize(ctx context.Context, req payment.AuthorizeRequest) (domain.PaymentResult, error)
	Refund(ctx context.Context, req payment.RefundRequest) (payment.RefundResult, error)
}

// PaymentServer serves the payment service API on top of a gateway,
// normally the in-process simulator.
type PaymentServer struct {
	gateway PaymentGateway
	log     *slog.Logger
}

// NewPaymentServer constructs a PaymentServer.
func NewPaymentServer(gateway PaymentGateway, log *slog.Logger) *PaymentServer {
	return &PaymentServer{gateway: gateway, log: log}
}

// Routes mounts the payment endpoints on r.
func (s *PaymentServer) Routes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})
	r.Post("/api/payments/process", s.ProcessPayment)
	r.Post("/api/payments/{paymentId}/refund", s.RefundPayment)
}

// ProcessPayment handles POST /api/payments/process.
// A declined charge is still a 200 with status FAILED.
func (s *PaymentServer) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var body payment.ProcessRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := s.gateway.Authorize(r.Context(), payment.AuthorizeRequest{
		IdempotencyKey: requestKey(r),
		Amount:         body.Amount,
		ClientID:       body.ClientID,
		Description:    body.Description,
		Method:         body.PaymentMethod,
	})
	if err != nil {
		writeDomainError(w, r, s.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RefundPayment handles POST /api/payments/{paymentId}/refund.
func (s *PaymentServer) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var body payment.RefundBody
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := s.gateway.Refund(r.Context(), payment.RefundRequest{
		IdempotencyKey: requestKey(r),
		PaymentID:      chi.URLParam(r, "paymentId"),
		Amount:         body.Amount,
		Reason:         body.Reason,
	})
	if err != nil {
		writeDomainError(w, r, s.log, err, "payment not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// requestKey returns the caller's idempotency key, or a fresh one so that
// callers without a key still get exactly one charge per request.
func requestKey(r *http.Request) string {
	if key := r.Header.Get(payment.IdempotencyHeader); key != "" {
		return key
	}
	return uuid.NewString()
}
