// Package settle drives a submitted transfer to a terminal outcome and
// applies that outcome to the invoice record.
package settle

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crypto-checkout/pkg/signer"
	"crypto-checkout/pkg/types"
)

const (
	// DefaultPollInterval is the pause between confirmation polls.
	DefaultPollInterval = 2 * time.Second

	// maxConsecutivePollErrors bounds transient lookup failures tolerated
	// before the attempt is reconciled and failed.
	maxConsecutivePollErrors = 3

	// reconcileTimeout bounds the final status lookup, which must be able
	// to run even after the caller's context is cancelled.
	reconcileTimeout = 10 * time.Second
)

var (
	// ErrOnChainFailure marks a transaction included with an execution
	// error: a definitive failure, not an ambiguous one.
	ErrOnChainFailure = fmt.Errorf("on-chain execution failure")

	// ErrConfirmationTimeout marks an attempt whose anchor expired (or that
	// was abandoned) without a definitive answer, after the mandatory
	// reconciliation lookup came back inconclusive.
	ErrConfirmationTimeout = fmt.Errorf("confirmation window expired")
)

// ChainRPC is the network boundary the machine polls. Satisfied by
// *chainrpc.Client.
type ChainRPC interface {
	SignatureStatus(ctx context.Context, sig solana.Signature) (included bool, execErr error, err error)
	BlockHeight(ctx context.Context) (uint64, error)
}

// Machine runs one settlement attempt at a time: signer hand-off, bounded
// confirmation polling, and the reconciliation lookup that disambiguates
// timeouts. It only ever reads a signature's on-chain status; a signed
// transaction is never re-submitted.
type Machine struct {
	chain    ChainRPC
	signer   signer.Signer
	interval time.Duration
	log      *logrus.Entry

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithPollInterval overrides the confirmation poll interval.
func WithPollInterval(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMachineLogger installs a custom logger.
func WithMachineLogger(l *logrus.Entry) MachineOption {
	return func(m *Machine) { m.log = l }
}

// NewMachine creates a settlement machine over the given chain boundary and
// signer.
func NewMachine(chain ChainRPC, s signer.Signer, opts ...MachineOption) *Machine {
	m := &Machine{
		chain:    chain,
		signer:   s,
		interval: DefaultPollInterval,
		log:      logrus.WithField("component", "settle"),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Settle drives the intent from Building to a terminal state and returns the
// finished attempt. The error is the outcome's cause and is nil only for
// Settled: signer.ErrUserRejected for Rejected, ErrOnChainFailure (or the
// underlying fault) for Failed, ErrConfirmationTimeout for TimedOut.
// Rejected and TimedOut end the attempt, not the invoice; the caller may
// build a fresh intent with a fresh anchor and try again.
func (m *Machine) Settle(ctx context.Context, intent *types.TransferIntent) (*types.SettlementAttempt, error) {
	attempt := &types.SettlementAttempt{
		ID:        uuid.NewString(),
		InvoiceID: intent.InvoiceID,
		ChainID:   intent.ChainID,
		State:     types.AttemptBuilding,
		StartedAt: m.now(),
	}
	log := m.log.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"invoice_id": attempt.InvoiceID,
	})

	sig, err := m.signer.SignAndSubmit(ctx, intent)
	if err != nil {
		if signer.IsUserRejected(err) {
			log.Info("signer reported user denial")
			return m.resolve(attempt, types.AttemptRejected), signer.ErrUserRejected
		}
		log.WithError(err).Warn("signer failed")
		return m.resolve(attempt, types.AttemptFailed), err
	}
	attempt.Signature = sig
	attempt.State = types.AttemptSubmitted
	log = log.WithField("signature", sig.String())
	log.Info("transfer submitted, confirming")

	attempt.State = types.AttemptConfirming
	return m.confirm(ctx, attempt, intent, log)
}

// confirm polls until inclusion, definitive failure, anchor expiry or
// cancellation. Every ambiguous exit path funnels through reconcile: chain
// state is authoritative, and skipping the lookup is what produces false
// negatives on slow networks.
func (m *Machine) confirm(ctx context.Context, attempt *types.SettlementAttempt, intent *types.TransferIntent, log *logrus.Entry) (*types.SettlementAttempt, error) {
	pollErrors := 0
	for {
		included, execErr, err := m.chain.SignatureStatus(ctx, attempt.Signature)
		switch {
		case err != nil:
			pollErrors++
			if ctx.Err() != nil {
				return m.reconcile(ctx, attempt, log, ErrConfirmationTimeout, types.AttemptTimedOut)
			}
			if pollErrors >= maxConsecutivePollErrors {
				log.WithError(err).Warn("confirmation polling kept failing")
				return m.reconcile(ctx, attempt, log, err, types.AttemptFailed)
			}
		case included && execErr == nil:
			log.Info("transfer settled")
			return m.resolve(attempt, types.AttemptSettled), nil
		case included:
			log.WithError(execErr).Warn("transfer failed on-chain")
			return m.resolve(attempt, types.AttemptFailed), fmt.Errorf("%w: %v", ErrOnChainFailure, execErr)
		default:
			expired, herr := m.anchorExpired(ctx, intent.AnchorExpiryHeight)
			if herr != nil {
				// Without a height the expiry deadline cannot be evaluated,
				// so height lookup failures spend the same error budget as
				// status lookup failures. Otherwise a broken height endpoint
				// would keep the loop confirming forever.
				pollErrors++
				if ctx.Err() != nil {
					return m.reconcile(ctx, attempt, log, ErrConfirmationTimeout, types.AttemptTimedOut)
				}
				if pollErrors >= maxConsecutivePollErrors {
					log.WithError(herr).Warn("block height lookups kept failing")
					return m.reconcile(ctx, attempt, log, herr, types.AttemptFailed)
				}
				break
			}
			pollErrors = 0
			if expired {
				log.Warn("anchor validity window expired")
				return m.reconcile(ctx, attempt, log, ErrConfirmationTimeout, types.AttemptTimedOut)
			}
		}

		if err := m.sleep(ctx, m.interval); err != nil {
			// Abandoned mid-flight: one last look at chain state, then
			// surface a retryable timeout rather than a dangling attempt.
			return m.reconcile(ctx, attempt, log, ErrConfirmationTimeout, types.AttemptTimedOut)
		}
	}
}

func (m *Machine) anchorExpired(ctx context.Context, expiryHeight uint64) (bool, error) {
	height, err := m.chain.BlockHeight(ctx)
	if err != nil {
		return false, err
	}
	return height > expiryHeight, nil
}

// reconcile performs the mandatory final status lookup by signature before
// an ambiguous outcome is surfaced. A transfer the chain reports as included
// is Settled (or Failed, on an execution error) regardless of how the
// polling loop got here.
func (m *Machine) reconcile(ctx context.Context, attempt *types.SettlementAttempt, log *logrus.Entry, cause error, fallback types.AttemptState) (*types.SettlementAttempt, error) {
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
	defer cancel()

	included, execErr, err := m.chain.SignatureStatus(lookupCtx, attempt.Signature)
	if err == nil && included {
		if execErr != nil {
			log.WithError(execErr).Warn("reconciliation found on-chain failure")
			return m.resolve(attempt, types.AttemptFailed), fmt.Errorf("%w: %v", ErrOnChainFailure, execErr)
		}
		log.Info("reconciliation found the transfer settled")
		return m.resolve(attempt, types.AttemptSettled), nil
	}
	if err != nil {
		log.WithError(err).Warn("reconciliation lookup inconclusive")
	}
	return m.resolve(attempt, fallback), cause
}

func (m *Machine) resolve(attempt *types.SettlementAttempt, state types.AttemptState) *types.SettlementAttempt {
	attempt.State = state
	resolved := m.now()
	attempt.ResolvedAt = &resolved
	return attempt
}
