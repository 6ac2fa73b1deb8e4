package transfer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-checkout/pkg/chains"
	"crypto-checkout/pkg/types"
)

type fakeAnchors struct {
	anchor solana.Hash
	height uint64
	err    error
	calls  int
}

func (f *fakeAnchors) LatestAnchor(context.Context) (solana.Hash, uint64, error) {
	f.calls++
	if f.err != nil {
		return solana.Hash{}, 0, f.err
	}
	return f.anchor, f.height, nil
}

var (
	testPayer    = solana.NewWallet().PublicKey()
	testMerchant = solana.NewWallet().PublicKey().String()
)

func solQuote(usd, price float64) types.Quote {
	return types.Quote{
		ChainID:      "solana",
		USDAmount:    usd,
		NativeAmount: usd / price,
		TokenSymbol:  "SOL",
		Price:        price,
		ComputedAt:   time.Now(),
	}
}

func TestBuildFloorsLamports(t *testing.T) {
	anchors := &fakeAnchors{anchor: solana.Hash{1}, height: 500}
	b := NewBuilder(anchors)

	// 10 USD at 150.0 USD/SOL = 0.0666... SOL; the lamport amount must
	// truncate, never round up.
	intent, err := b.Build(context.Background(), solQuote(10, 150.0), "inv-1", testMerchant, testPayer)
	require.NoError(t, err)

	assert.Equal(t, uint64(66666666), intent.Lamports)
	assert.Equal(t, solana.Hash{1}, intent.Anchor)
	assert.Equal(t, uint64(500), intent.AnchorExpiryHeight)
	assert.Equal(t, "inv-1", intent.InvoiceID)
	require.NotNil(t, intent.Tx)
	assert.Equal(t, solana.Hash{1}, intent.Tx.Message.RecentBlockhash)
}

func TestSmallestUnitNeverRoundsUp(t *testing.T) {
	units, err := SmallestUnit(0.9999999999, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(999999999), units)

	units, err = SmallestUnit(1.0, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000000), units)

	_, err = SmallestUnit(0.0000000001, 9)
	assert.ErrorIs(t, err, ErrAmountTooSmall)
}

func TestBuildRejectsBadAddressBeforeAnyNetworkCall(t *testing.T) {
	anchors := &fakeAnchors{anchor: solana.Hash{1}, height: 500}
	b := NewBuilder(anchors)

	_, err := b.Build(context.Background(), solQuote(10, 150.0), "inv-1", "not-an-address", testPayer)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, 0, anchors.calls, "address validation must precede the anchor fetch")
}

func TestBuildRejectsEmptyPayer(t *testing.T) {
	b := NewBuilder(&fakeAnchors{anchor: solana.Hash{1}, height: 500})
	_, err := b.Build(context.Background(), solQuote(10, 150.0), "inv-1", testMerchant, solana.PublicKey{})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestBuildAnchorUnavailable(t *testing.T) {
	anchors := &fakeAnchors{err: fmt.Errorf("connection refused")}
	b := NewBuilder(anchors)

	_, err := b.Build(context.Background(), solQuote(10, 150.0), "inv-1", testMerchant, testPayer)
	assert.ErrorIs(t, err, ErrAnchorUnavailable)
}

func TestBuildRejectsQuoteOnlyChain(t *testing.T) {
	b := NewBuilder(&fakeAnchors{})
	q := types.Quote{ChainID: "ethereum", USDAmount: 10, NativeAmount: 0.004, TokenSymbol: "ETH", Price: 2500}
	_, err := b.Build(context.Background(), q, "inv-1", "0x8ba1f109551bD432803012645Ac136ddd64DBA72", testPayer)
	assert.ErrorIs(t, err, chains.ErrUnsupportedChain)
}
