package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/internal/payment"
)

var _ payment.Gateway = (*payment.Client)(nil)

func newTestServer(t *testing.T, h http.HandlerFunc) *payment.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return payment.NewClient(srv.URL+"/", time.Second)
}

func TestClient_Authorize_Success(t *testing.T) {
	var gotKey string
	var gotBody payment.ProcessRequest
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/payments/process", r.URL.Path)
		gotKey = r.Header.Get(payment.IdempotencyHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.PaymentResult{
			PaymentID: "ch_abc",
			Status:    domain.PaymentSuccess,
			Message:   "ok",
			Amount:    gotBody.Amount,
			Method:    domain.MethodStripe,
		})
	})

	got, err := client.Authorize(context.Background(), authorizeReq("key-1"))

	require.NoError(t, err)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "stripe", gotBody.PaymentMethod)
	assert.Equal(t, "client-1", gotBody.ClientID)
	assert.True(t, gotBody.Amount.Equal(decimal.RequireFromString("250")))
	assert.Equal(t, "ch_abc", got.PaymentID)
	assert.True(t, got.Succeeded())
}

func TestClient_Authorize_DeclinedIsNotAnError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.PaymentResult{Status: domain.PaymentFailed, Message: "declined"})
	})

	got, err := client.Authorize(context.Background(), authorizeReq("key-1"))

	require.NoError(t, err)
	assert.False(t, got.Succeeded())
}

func TestClient_Authorize_ValidatesBeforeCalling(t *testing.T) {
	var calls atomic.Int32
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	})
	req := authorizeReq("key-1")
	req.Method = "venmo"

	_, err := client.Authorize(context.Background(), req)

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, calls.Load())
}

func TestClient_Authorize_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, domain.ErrValidation},
		{http.StatusConflict, domain.ErrConflict},
		{http.StatusInternalServerError, domain.ErrUpstreamUnavailable},
		{http.StatusServiceUnavailable, domain.ErrUpstreamUnavailable},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"code":"x","message":"boom"}}`))
			})

			_, err := client.Authorize(context.Background(), authorizeReq("key-1"))

			require.ErrorIs(t, err, tc.want)
			assert.Contains(t, err.Error(), "boom")
		})
	}
}

func TestClient_Authorize_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	client := payment.NewClient(srv.URL, 20*time.Millisecond)

	_, err := client.Authorize(context.Background(), authorizeReq("key-1"))

	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_Authorize_EmptyBaseURL(t *testing.T) {
	client := payment.NewClient("", time.Second)

	_, err := client.Authorize(context.Background(), authorizeReq("key-1"))

	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_Refund(t *testing.T) {
	var gotPath, gotKey string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get(payment.IdempotencyHeader)
		_ = json.NewEncoder(w).Encode(payment.RefundResult{
			RefundID:  "re_1",
			PaymentID: "ch_abc",
			Amount:    decimal.NewFromInt(250),
			Status:    payment.RefundSucceeded,
		})
	})

	got, err := client.Refund(context.Background(), payment.RefundRequest{
		IdempotencyKey: "refund:key-1",
		PaymentID:      "ch_abc",
		Amount:         decimal.NewFromInt(250),
	})

	require.NoError(t, err)
	assert.Equal(t, "/api/payments/ch_abc/refund", gotPath)
	assert.Equal(t, "refund:key-1", gotKey)
	assert.Equal(t, "re_1", got.RefundID)
}

func TestClient_Refund_NotFound(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such payment", http.StatusNotFound)
	})

	_, err := client.Refund(context.Background(), payment.RefundRequest{IdempotencyKey: "r", PaymentID: "ch_x"})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
