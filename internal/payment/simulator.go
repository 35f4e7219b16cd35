package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// Decider chooses whether a simulated charge is approved.
type Decider interface {
	Approve(req AuthorizeRequest) bool
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(req AuthorizeRequest) bool

func (f DeciderFunc) Approve(req AuthorizeRequest) bool { return f(req) }

// Always returns a Decider with a fixed answer.
func Always(approve bool) Decider {
	return DeciderFunc(func(AuthorizeRequest) bool { return approve })
}

// RandomDecider declines a fraction FailureRate of charges at random.
type RandomDecider struct {
	FailureRate float64
}

func (d RandomDecider) Approve(AuthorizeRequest) bool {
	return rand.Float64() >= d.FailureRate
}

type simPayment struct {
	result   domain.PaymentResult
	request  AuthorizeRequest
	refundID string
}

// Simulator is an in-memory Gateway. It honours idempotency keys for both
// authorizations and refunds, so it can stand in for the remote payment
// service in development and in tests.
type Simulator struct {
	decider Decider
	delay   time.Duration

	mu       sync.Mutex
	byKey    map[string]*simPayment // authorize idempotency key -> payment
	byID     map[string]*simPayment // payment id -> payment
	refunds  map[string]RefundResult
	requests int
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithDelay makes every authorization wait d (or until ctx is done) before
// answering, to mimic provider latency.
func WithDelay(d time.Duration) SimulatorOption {
	return func(s *Simulator) { s.delay = d }
}

// NewSimulator constructs a Simulator that approves charges per decider.
func NewSimulator(decider Decider, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		decider: decider,
		byKey:   make(map[string]*simPayment),
		byID:    make(map[string]*simPayment),
		refunds: make(map[string]RefundResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize simulates a charge. A repeated key returns the stored result;
// reusing a key for a different amount or client is a validation error and
// reusing the key of a refunded payment is a conflict.
func (s *Simulator) Authorize(ctx context.Context, req AuthorizeRequest) (domain.PaymentResult, error) {
	req, err := req.Validate()
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("payment.Simulator.Authorize: %w", err)
	}

	if prior, ok := s.lookup(req.IdempotencyKey); ok {
		if !prior.request.Amount.Equal(req.Amount) || prior.request.ClientID != req.ClientID {
			return domain.PaymentResult{}, fmt.Errorf("payment.Simulator.Authorize: %w: idempotency key %q reused with a different request",
				domain.ErrValidation, req.IdempotencyKey)
		}
		return replay(prior)
	}

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.PaymentResult{}, fmt.Errorf("payment.Simulator.Authorize: %w: %w", domain.ErrUpstreamUnavailable, ctx.Err())
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A concurrent call with the same key may have won while we slept.
	if prior, ok := s.byKey[req.IdempotencyKey]; ok {
		return replay(*prior)
	}
	s.requests++

	method := domain.PaymentMethod(req.Method)
	result := domain.PaymentResult{
		Status:  domain.PaymentFailed,
		Message: "Payment processing failed. Please try again or use a different payment method.",
		Amount:  req.Amount,
		Method:  method,
	}
	if s.decider.Approve(req) {
		result = domain.PaymentResult{
			PaymentID: newPaymentID(method),
			Status:    domain.PaymentSuccess,
			Message:   fmt.Sprintf("Payment processed successfully via %s", strings.ToUpper(req.Method)),
			Amount:    req.Amount,
			Method:    method,
		}
	}

	p := &simPayment{result: result, request: req}
	s.byKey[req.IdempotencyKey] = p
	if result.Succeeded() {
		s.byID[result.PaymentID] = p
	}
	return result, nil
}

// Refund reverses a successful payment once. Repeating the same key, or
// refunding an already refunded payment, returns the original refund.
func (s *Simulator) Refund(_ context.Context, req RefundRequest) (RefundResult, error) {
	if err := req.Validate(); err != nil {
		return RefundResult{}, fmt.Errorf("payment.Simulator.Refund: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.refunds[req.IdempotencyKey]; ok {
		return prior, nil
	}
	p, ok := s.byID[req.PaymentID]
	if !ok {
		return RefundResult{}, fmt.Errorf("payment.Simulator.Refund: %w: payment %q", domain.ErrNotFound, req.PaymentID)
	}
	if p.refundID != "" {
		return s.refunds[p.refundID], nil
	}

	amount := req.Amount
	if amount.IsZero() || amount.GreaterThan(p.result.Amount) {
		amount = p.result.Amount
	}
	result := RefundResult{
		RefundID:  "re_" + randomHex(24),
		PaymentID: req.PaymentID,
		Amount:    amount,
		Status:    RefundSucceeded,
	}
	p.refundID = req.IdempotencyKey
	s.refunds[req.IdempotencyKey] = result
	return result, nil
}

// Charged returns the total successfully captured and not refunded.
func (s *Simulator) Charged() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, p := range s.byID {
		if p.refundID == "" {
			total = total.Add(p.result.Amount)
		}
	}
	return total
}

// Requests returns how many distinct authorizations reached a decision.
func (s *Simulator) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// lookup returns a copy of the payment stored under key.
func (s *Simulator) lookup(key string) (simPayment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byKey[key]
	if !ok {
		return simPayment{}, false
	}
	return *p, true
}

// replay answers a repeated authorization. A refunded payment cannot back a
// new rental, so its key is retired.
func replay(p simPayment) (domain.PaymentResult, error) {
	if p.refundID != "" {
		return domain.PaymentResult{}, fmt.Errorf(
			"payment.Simulator.Authorize: %w: payment %s for this idempotency key was refunded, use a new key",
			domain.ErrConflict, p.result.PaymentID)
	}
	return p.result, nil
}

// newPaymentID mimics provider ids: "ch_" for stripe, "PP-" for paypal,
// followed by 24 hex characters.
func newPaymentID(method domain.PaymentMethod) string {
	prefix := "ch_"
	if method == domain.MethodPayPal {
		prefix = "PP-"
	}
	return prefix + randomHex(24)
}

func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
