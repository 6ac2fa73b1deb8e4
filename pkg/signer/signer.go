// Package signer defines the wallet boundary. The checkout core hands an
// unsigned transfer across this boundary and gets back a signature; it never
// sees key material.
package signer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"crypto-checkout/pkg/types"
)

// ErrUserRejected is the signer-reported denial. The attempt ends Rejected,
// the invoice stays untouched and the payer may immediately retry.
var ErrUserRejected = fmt.Errorf("user rejected the transaction")

// Signer signs a transfer intent and submits it to the network, returning
// the transaction signature. Implementations are opaque wallets: a browser
// extension bridge, a remote signing service, or the local keypair signer
// below.
type Signer interface {
	SignAndSubmit(ctx context.Context, intent *types.TransferIntent) (solana.Signature, error)
}

// IsUserRejected reports whether an error represents explicit user denial,
// either via the sentinel or the message wallets commonly surface.
func IsUserRejected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}

// TransactionSender submits signed transactions. Satisfied by
// *chainrpc.Client.
type TransactionSender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Local signs with a base58-encoded keypair and submits over RPC. It exists
// for the CLI and tests; production merchants integrate a wallet instead.
type Local struct {
	key    solana.PrivateKey
	sender TransactionSender
}

// NewLocal parses the base58 private key and binds the signer to a sender.
func NewLocal(privateKeyBase58 string, sender TransactionSender) (*Local, error) {
	key, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if sender == nil {
		return nil, fmt.Errorf("transaction sender is required")
	}
	return &Local{key: key, sender: sender}, nil
}

// PublicKey returns the payer identity of this signer.
func (l *Local) PublicKey() solana.PublicKey {
	return l.key.PublicKey()
}

// SignAndSubmit signs the intent's transaction and sends it.
func (l *Local) SignAndSubmit(ctx context.Context, intent *types.TransferIntent) (solana.Signature, error) {
	if intent == nil || intent.Tx == nil {
		return solana.Signature{}, fmt.Errorf("nil transfer intent")
	}
	if !intent.From.Equals(l.key.PublicKey()) {
		return solana.Signature{}, fmt.Errorf("intent payer %s does not match signer %s", intent.From, l.key.PublicKey())
	}

	_, err := intent.Tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(l.key.PublicKey()) {
			return &l.key
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return l.sender.SendTransaction(ctx, intent.Tx)
}
