package settle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-checkout/pkg/store"
	"crypto-checkout/pkg/types"
)

type countingNotifier struct {
	calls int
	last  types.Invoice
	err   error
}

func (n *countingNotifier) PaymentSucceeded(_ context.Context, invoice types.Invoice) error {
	n.calls++
	n.last = invoice
	return n.err
}

func seedInvoice(t *testing.T, s *store.Memory) types.Invoice {
	t.Helper()
	invoice := types.Invoice{
		ID:              "inv-1",
		Name:            "Pro plan",
		MerchantAddress: solana.NewWallet().PublicKey().String(),
		AmountUSD:       25,
		SupportedChains: []string{"solana"},
		Active:          true,
	}
	require.NoError(t, s.CreateInvoice(context.Background(), invoice))
	return invoice
}

func terminalAttempt(state types.AttemptState) *types.SettlementAttempt {
	now := time.Now()
	return &types.SettlementAttempt{
		ID:         "attempt-1",
		InvoiceID:  "inv-1",
		ChainID:    "solana",
		Signature:  solana.Signature{9},
		State:      state,
		StartedAt:  now,
		ResolvedAt: &now,
	}
}

func TestApplySettledWritesOnceAndNotifiesOnce(t *testing.T) {
	s := store.NewMemory()
	seedInvoice(t, s)
	notifier := &countingNotifier{}
	r := NewReconciler(s, notifier)

	res, err := r.Apply(context.Background(), terminalAttempt(types.AttemptSettled))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.True(t, res.Changed)
	assert.True(t, res.Notified)
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, "inv-1", notifier.last.ID)

	// A second settled outcome for the same invoice is a no-op.
	res, err = r.Apply(context.Background(), terminalAttempt(types.AttemptSettled))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.False(t, res.Changed)
	assert.False(t, res.Notified)
	assert.Equal(t, 1, notifier.calls, "notification must fire exactly once per invoice")
}

func TestApplyFailedAfterSuccessDoesNotRegress(t *testing.T) {
	s := store.NewMemory()
	seedInvoice(t, s)
	notifier := &countingNotifier{}
	r := NewReconciler(s, notifier)

	_, err := r.Apply(context.Background(), terminalAttempt(types.AttemptSettled))
	require.NoError(t, err)

	res, err := r.Apply(context.Background(), terminalAttempt(types.AttemptFailed))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, res.Status, "a recorded success is final")
	assert.False(t, res.Changed)

	invoice, err := s.GetInvoice(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, invoice.Status)
}

func TestApplyDelayedSuccessOverridesFailure(t *testing.T) {
	s := store.NewMemory()
	seedInvoice(t, s)
	r := NewReconciler(s, &countingNotifier{})

	_, err := r.Apply(context.Background(), terminalAttempt(types.AttemptFailed))
	require.NoError(t, err)

	res, err := r.Apply(context.Background(), terminalAttempt(types.AttemptSettled))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.True(t, res.Changed, "a transfer confirmed after a failure verdict still settles the invoice")
	assert.True(t, res.Notified)
}

func TestApplyRetryableOutcomesPersistNothing(t *testing.T) {
	s := store.NewMemory()
	seedInvoice(t, s)
	notifier := &countingNotifier{}
	r := NewReconciler(s, notifier)

	for _, state := range []types.AttemptState{types.AttemptRejected, types.AttemptTimedOut} {
		res, err := r.Apply(context.Background(), terminalAttempt(state))
		require.NoError(t, err)
		assert.Equal(t, types.StatusPending, res.Status)
		assert.False(t, res.Changed)
	}
	assert.Equal(t, 0, notifier.calls)

	// The invoice record is untouched and a fresh attempt can still settle it.
	res, err := r.Apply(context.Background(), terminalAttempt(types.AttemptSettled))
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestApplyNotificationFailureKeepsSettlement(t *testing.T) {
	s := store.NewMemory()
	seedInvoice(t, s)
	notifier := &countingNotifier{err: fmt.Errorf("webhook: 503")}
	r := NewReconciler(s, notifier)

	res, err := r.Apply(context.Background(), terminalAttempt(types.AttemptSettled))
	require.Error(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Notified)

	invoice, gerr := s.GetInvoice(context.Background(), "inv-1")
	require.NoError(t, gerr)
	assert.Equal(t, types.StatusSuccess, invoice.Status, "the status write is never rolled back")
}

func TestApplyRejectsNonTerminalAttempt(t *testing.T) {
	r := NewReconciler(store.NewMemory(), nil)
	_, err := r.Apply(context.Background(), terminalAttempt(types.AttemptConfirming))
	assert.Error(t, err)
}
