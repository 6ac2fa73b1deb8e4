package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-checkout/pkg/types"
)

func TestWebhookPostsPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).PaymentSucceeded(context.Background(), types.Invoice{
		ID:          "inv-1",
		AmountUSD:   25,
		PaidChainID: "solana",
		Signature:   "5KtP...sig",
	})
	require.NoError(t, err)
	assert.Equal(t, "payment.succeeded", got.Event)
	assert.Equal(t, "inv-1", got.InvoiceID)
	assert.Equal(t, "solana", got.ChainID)
}

func TestWebhookNonSuccessStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).PaymentSucceeded(context.Background(), types.Invoice{ID: "inv-1"})
	assert.Error(t, err)
}

func TestLogNotifierNeverFails(t *testing.T) {
	assert.NoError(t, NewLog().PaymentSucceeded(context.Background(), types.Invoice{ID: "inv-1"}))
}
