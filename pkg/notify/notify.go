// Package notify delivers payment notifications after an invoice settles.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"crypto-checkout/pkg/types"
)

// Log records settled payments through the structured logger. It is the
// default notifier when no webhook is configured.
type Log struct {
	log *logrus.Entry
}

// NewLog creates a log-backed notifier.
func NewLog() *Log {
	return &Log{log: logrus.WithField("component", "notify")}
}

func (n *Log) PaymentSucceeded(_ context.Context, invoice types.Invoice) error {
	n.log.WithFields(logrus.Fields{
		"invoice_id": invoice.ID,
		"chain_id":   invoice.PaidChainID,
		"amount_usd": invoice.AmountUSD,
		"signature":  invoice.Signature,
	}).Info("payment settled")
	return nil
}

// Webhook posts a JSON payload to a merchant-configured URL. Delivery
// failures bubble up to the reconciler; the settlement itself stands.
type Webhook struct {
	url    string
	client *http.Client
	log    *logrus.Entry
}

// NewWebhook creates a webhook notifier for the given endpoint.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logrus.WithField("component", "notify"),
	}
}

type webhookPayload struct {
	Event     string    `json:"event"`
	InvoiceID string    `json:"invoiceId"`
	AmountUSD float64   `json:"usdAmount"`
	ChainID   string    `json:"chainId"`
	Signature string    `json:"signature"`
	PaidAt    time.Time `json:"paidAt"`
}

func (n *Webhook) PaymentSucceeded(ctx context.Context, invoice types.Invoice) error {
	body, err := json.Marshal(webhookPayload{
		Event:     "payment.succeeded",
		InvoiceID: invoice.ID,
		AmountUSD: invoice.AmountUSD,
		ChainID:   invoice.PaidChainID,
		Signature: invoice.Signature,
		PaidAt:    invoice.UpdatedAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	n.log.WithField("invoice_id", invoice.ID).Info("webhook delivered")
	return nil
}
