// Package transfer constructs unsigned native-token transfers from quotes.
package transfer

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"

	"crypto-checkout/pkg/chains"
	"crypto-checkout/pkg/types"
)

var (
	// ErrInvalidAddress is returned for a merchant or payer address that is
	// malformed for the target chain. Never retried automatically.
	ErrInvalidAddress = fmt.Errorf("invalid address")

	// ErrAnchorUnavailable is returned when the network call for a recent
	// blockhash fails. Retryable: the wrapped cause is a transport error.
	ErrAnchorUnavailable = fmt.Errorf("recent anchor unavailable")

	// ErrAmountTooSmall is returned when the native amount floors to zero
	// smallest units.
	ErrAmountTooSmall = fmt.Errorf("amount too small to transfer")
)

// AnchorSource supplies replay-protection anchors. Satisfied by
// *chainrpc.Client.
type AnchorSource interface {
	LatestAnchor(ctx context.Context) (solana.Hash, uint64, error)
}

// Builder turns quotes into unsigned transfer intents.
type Builder struct {
	anchors AnchorSource
}

// NewBuilder creates a transfer builder backed by the given anchor source.
func NewBuilder(anchors AnchorSource) *Builder {
	return &Builder{anchors: anchors}
}

// Build validates the merchant address, fetches a recent anchor and
// assembles the unsigned transfer. Address validation runs before any
// network call so a doomed transfer never costs a round trip. The
// smallest-unit amount is floored, never rounded up.
func (b *Builder) Build(ctx context.Context, q types.Quote, invoiceID, merchantAddress string, payer solana.PublicKey) (*types.TransferIntent, error) {
	chain, err := chains.Get(q.ChainID)
	if err != nil {
		return nil, err
	}
	if !chain.Transfers {
		return nil, fmt.Errorf("%w: %s is quote-only", chains.ErrUnsupportedChain, chain.ID)
	}
	if !chain.ValidAddress(merchantAddress) {
		return nil, fmt.Errorf("%w: %q is not a valid %s address", ErrInvalidAddress, merchantAddress, chain.Name)
	}
	recipient, err := solana.PublicKeyFromBase58(merchantAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if payer.IsZero() {
		return nil, fmt.Errorf("%w: payer public key is empty", ErrInvalidAddress)
	}

	lamports, err := SmallestUnit(q.NativeAmount, chain.Decimals)
	if err != nil {
		return nil, err
	}

	anchor, expiryHeight, err := b.anchors.LatestAnchor(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnchorUnavailable, err)
	}

	instruction := system.NewTransferInstruction(lamports, payer, recipient).Build()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		anchor,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &types.TransferIntent{
		InvoiceID:          invoiceID,
		ChainID:            chain.ID,
		From:               payer,
		To:                 recipient,
		NativeAmount:       q.NativeAmount,
		Lamports:           lamports,
		Anchor:             anchor,
		AnchorExpiryHeight: expiryHeight,
		Tx:                 tx,
	}, nil
}

// SmallestUnit floors a native amount into 10^decimals integer base units.
// Flooring (never rounding up) keeps float imprecision from overspending.
func SmallestUnit(amount float64, decimals int32) (uint64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrAmountTooSmall, amount)
	}
	units := decimal.NewFromFloat(amount).Mul(decimal.New(1, decimals)).Floor()
	if units.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %v floors to zero base units", ErrAmountTooSmall, amount)
	}
	if !units.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount overflows base units: %v", amount)
	}
	return units.BigInt().Uint64(), nil
}
