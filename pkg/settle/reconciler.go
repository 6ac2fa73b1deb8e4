package settle

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"crypto-checkout/pkg/types"
)

// InvoiceStore is the persistence collaborator. SetInvoiceStatus must be
// atomic and monotonic: a stored success is never overwritten, and repeated
// writes of the same status report changed=false instead of erroring.
type InvoiceStore interface {
	GetInvoice(ctx context.Context, id string) (types.Invoice, error)
	SetInvoiceStatus(ctx context.Context, id string, status types.InvoiceStatus, signature, chainID string) (changed bool, err error)
}

// Notifier is the outbound notification collaborator, invoked after an
// effective success write.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, invoice types.Invoice) error
}

// Result describes what applying an outcome did to the invoice record.
type Result struct {
	Status   types.InvoiceStatus // status after the call
	Changed  bool                // whether this call performed the write
	Notified bool                // whether this call triggered the notification
}

// Reconciler applies attempt outcomes to invoice records exactly once.
type Reconciler struct {
	store    InvoiceStore
	notifier Notifier
	log      *logrus.Entry
}

// NewReconciler creates a reconciler over the persistence and notification
// collaborators.
func NewReconciler(store InvoiceStore, notifier Notifier) *Reconciler {
	return &Reconciler{
		store:    store,
		notifier: notifier,
		log:      logrus.WithField("component", "reconciler"),
	}
}

// Apply maps a terminal attempt outcome onto the invoice status. Settled
// writes success; Failed writes failed unless the invoice already succeeded;
// Rejected and TimedOut are attempt-local and persist nothing. The
// notification fires exactly once per invoice, on the effective transition
// to success; a notification error is returned to the caller but the status
// write it follows is never rolled back.
func (r *Reconciler) Apply(ctx context.Context, attempt *types.SettlementAttempt) (Result, error) {
	if attempt == nil || !attempt.State.Terminal() {
		return Result{}, fmt.Errorf("attempt is not in a terminal state")
	}
	log := r.log.WithFields(logrus.Fields{
		"invoice_id": attempt.InvoiceID,
		"state":      string(attempt.State),
	})

	switch attempt.State {
	case types.AttemptSettled:
		changed, err := r.store.SetInvoiceStatus(ctx, attempt.InvoiceID, types.StatusSuccess, sigString(attempt), attempt.ChainID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to record settlement: %w", err)
		}
		result := Result{Status: types.StatusSuccess, Changed: changed}
		if !changed {
			log.Info("settlement already recorded, skipping notification")
			return result, nil
		}
		invoice, err := r.store.GetInvoice(ctx, attempt.InvoiceID)
		if err != nil {
			return result, fmt.Errorf("settled but could not reload invoice for notification: %w", err)
		}
		if r.notifier != nil {
			if err := r.notifier.PaymentSucceeded(ctx, invoice); err != nil {
				log.WithError(err).Warn("notification failed; settlement stands")
				return result, fmt.Errorf("settled but notification failed: %w", err)
			}
			result.Notified = true
		}
		return result, nil

	case types.AttemptFailed:
		changed, err := r.store.SetInvoiceStatus(ctx, attempt.InvoiceID, types.StatusFailed, sigString(attempt), attempt.ChainID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to record failure: %w", err)
		}
		status := types.StatusFailed
		if !changed {
			// The store refused the write; a prior success is final.
			invoice, err := r.store.GetInvoice(ctx, attempt.InvoiceID)
			if err == nil {
				status = invoice.Status
			}
			log.WithField("status", string(status)).Info("failure not recorded")
		}
		return Result{Status: status, Changed: changed}, nil

	default: // Rejected, TimedOut: retryable, nothing persisted
		invoice, err := r.store.GetInvoice(ctx, attempt.InvoiceID)
		if err != nil {
			return Result{}, err
		}
		return Result{Status: invoice.Status}, nil
	}
}

// sigString renders the attempt signature, empty when the signer never
// returned one.
func sigString(attempt *types.SettlementAttempt) string {
	if attempt.Signature.IsZero() {
		return ""
	}
	return attempt.Signature.String()
}
