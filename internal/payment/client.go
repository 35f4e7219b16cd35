package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// IdempotencyHeader carries the authorization's idempotency key over HTTP.
const IdempotencyHeader = "Idempotency-Key"

// ProcessRequest is the JSON body of POST /api/payments/process.
type ProcessRequest struct {
	PaymentMethod string          `json:"paymentMethod"`
	Amount        decimal.Decimal `json:"amount"`
	ClientID      string          `json:"clientId"`
	Description   string          `json:"description"`
}

// RefundBody is the JSON body of POST /api/payments/{paymentId}/refund.
type RefundBody struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason,omitempty"`
}

// Client is a Gateway backed by the remote payment service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a payment service client. timeout bounds every call.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Authorize calls POST /api/payments/process.
func (c *Client) Authorize(ctx context.Context, req AuthorizeRequest) (domain.PaymentResult, error) {
	req, err := req.Validate()
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("payment.Client.Authorize: %w", err)
	}

	body := ProcessRequest{
		PaymentMethod: req.Method,
		Amount:        req.Amount,
		ClientID:      req.ClientID,
		Description:   req.Description,
	}
	var result domain.PaymentResult
	if err := c.post(ctx, "/api/payments/process", req.IdempotencyKey, body, &result); err != nil {
		return domain.PaymentResult{}, fmt.Errorf("payment.Client.Authorize: %w", err)
	}
	if result.Status != domain.PaymentSuccess && result.Status != domain.PaymentFailed {
		return domain.PaymentResult{}, fmt.Errorf("payment.Client.Authorize: %w: unexpected status %q",
			domain.ErrUpstreamUnavailable, result.Status)
	}
	return result, nil
}

// Refund calls POST /api/payments/{paymentId}/refund.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if err := req.Validate(); err != nil {
		return RefundResult{}, fmt.Errorf("payment.Client.Refund: %w", err)
	}

	path := "/api/payments/" + url.PathEscape(req.PaymentID) + "/refund"
	var result RefundResult
	if err := c.post(ctx, path, req.IdempotencyKey, RefundBody{Amount: req.Amount, Reason: req.Reason}, &result); err != nil {
		return RefundResult{}, fmt.Errorf("payment.Client.Refund: %w", err)
	}
	return result, nil
}

// post sends body as JSON and decodes a 2xx response into out.
// Non-2xx statuses and transport failures are mapped to domain sentinels.
func (c *Client) post(ctx context.Context, path, key string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: payment service base url is empty", domain.ErrUpstreamUnavailable)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		msg = eb.Error.Message
	}

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		sentinel = domain.ErrValidation
	case resp.StatusCode == http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		sentinel = domain.ErrConflict
	default:
		sentinel = domain.ErrUpstreamUnavailable
	}
	return fmt.Errorf("%w: payment service returned %d: %s", sentinel, resp.StatusCode, msg)
}
