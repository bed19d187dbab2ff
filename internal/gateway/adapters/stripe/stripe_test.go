package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	gatewaydomain "github.com/smallbiznis/panelbilling/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) gatewaydomain.Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	adapter, err := NewFactory().NewAdapter(gatewaydomain.AdapterConfig{
		APIKey:     "sk_test",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return adapter
}

func writeIntent(w http.ResponseWriter, intent map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(intent)
}

func TestCreateTransactionUsesManualCapture(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "270", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "manual", r.PostForm.Get("capture_method"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[order_id]"))
		writeIntent(w, map[string]any{
			"id": "pi_1", "client_secret": "pi_1_secret", "status": "requires_payment_method",
			"amount": 270, "currency": "usd",
		})
	})

	tx, err := adapter.CreateTransaction(context.Background(), gatewaydomain.CreateRequest{
		OrderID:        42,
		UserID:         7,
		Amount:         decimal.RequireFromString("2.70"),
		Currency:       "USD",
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", tx.Reference)
	assert.Equal(t, "pi_1_secret", tx.ClientSecret)
	assert.Equal(t, gatewaydomain.StatusPending, tx.Status)
	assert.Equal(t, "USD", tx.Currency)
}

func TestCreateTransactionRejectsZeroAmount(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway must not be called")
	})
	_, err := adapter.CreateTransaction(context.Background(), gatewaydomain.CreateRequest{
		Amount: decimal.RequireFromString("0.001"), Currency: "USD",
	})
	assert.ErrorIs(t, err, gatewaydomain.ErrInvalidAmount)
}

func TestRetrieveMapsStatus(t *testing.T) {
	statuses := map[string]gatewaydomain.Status{
		"requires_capture": gatewaydomain.StatusCapturable,
		"succeeded":        gatewaydomain.StatusCaptured,
		"canceled":         gatewaydomain.StatusCanceled,
		"processing":       gatewaydomain.StatusPending,
	}
	for stripeStatus, want := range statuses {
		adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/v1/payment_intents/pi_1", r.URL.Path)
			writeIntent(w, map[string]any{"id": "pi_1", "status": stripeStatus, "amount": 100, "currency": "usd"})
		})
		tx, err := adapter.Retrieve(context.Background(), "pi_1")
		require.NoError(t, err)
		assert.Equal(t, want, tx.Status, stripeStatus)
	}
}

func TestRetrieveNotFound(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"resource_missing","message":"No such payment_intent"}}`))
	})
	_, err := adapter.Retrieve(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, gatewaydomain.ErrTransactionNotFound)
}

func TestCapture(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_1/capture", r.URL.Path)
		assert.Equal(t, "capture:pi_1", r.Header.Get("Idempotency-Key"))
		writeIntent(w, map[string]any{"id": "pi_1", "status": "succeeded", "amount": 270, "currency": "usd"})
	})
	tx, err := adapter.Capture(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, gatewaydomain.StatusCaptured, tx.Status)
}

func TestCaptureGatewayError(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"code":"card_declined","message":"Your card was declined."}}`))
	})
	_, err := adapter.Capture(context.Background(), "pi_1")
	require.ErrorIs(t, err, gatewaydomain.ErrGateway)
	assert.Contains(t, err.Error(), "declined")
}

func TestFactoryRequiresAPIKey(t *testing.T) {
	_, err := NewFactory().NewAdapter(gatewaydomain.AdapterConfig{})
	assert.ErrorIs(t, err, gatewaydomain.ErrInvalidConfig)
}
