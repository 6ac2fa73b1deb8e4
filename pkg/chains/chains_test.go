package chains

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	sol, err := Get("solana")
	require.NoError(t, err)
	assert.Equal(t, "SOL", sol.TokenSymbol)
	assert.EqualValues(t, 9, sol.Decimals)
	assert.True(t, sol.Transfers)

	eth, err := Get("ethereum")
	require.NoError(t, err)
	assert.Equal(t, "ETH", eth.TokenSymbol)
	assert.False(t, eth.Transfers, "ethereum is quote-only")

	_, err = Get("dogecoin")
	assert.ErrorIs(t, err, ErrUnsupportedChain)
	assert.False(t, IsSupported("dogecoin"))
}

func TestAddressValidation(t *testing.T) {
	sol, _ := Get("solana")
	assert.True(t, sol.ValidAddress(solana.NewWallet().PublicKey().String()))
	assert.False(t, sol.ValidAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e"))
	assert.False(t, sol.ValidAddress(""))

	eth, _ := Get("ethereum")
	assert.True(t, eth.ValidAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e"))
	assert.False(t, eth.ValidAddress("not-an-address"))
}

func TestValidAddressForAny(t *testing.T) {
	solAddr := solana.NewWallet().PublicKey().String()
	hexAddr := "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

	assert.True(t, ValidAddressForAny([]string{"solana"}, solAddr))
	assert.True(t, ValidAddressForAny([]string{"ethereum"}, hexAddr))
	assert.True(t, ValidAddressForAny([]string{"solana", "ethereum"}, hexAddr))

	// A hex address is not acceptable for an invoice that only takes solana.
	assert.False(t, ValidAddressForAny([]string{"solana"}, hexAddr))
	assert.False(t, ValidAddressForAny([]string{"dogecoin"}, solAddr))
	assert.False(t, ValidAddressForAny(nil, solAddr))
}

func TestExplorerTxURL(t *testing.T) {
	url := ExplorerTxURL("solana", "5Kt")
	assert.Contains(t, url, "5Kt")
	assert.Empty(t, ExplorerTxURL("dogecoin", "5Kt"))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "0.0667", FormatNative(0.06666666, "SOL"))
	assert.Equal(t, "0.004167", FormatNative(0.00416666, "ETH"))
	assert.Equal(t, "25.00", FormatUSD(25))
}

func TestIDsAreStable(t *testing.T) {
	assert.Equal(t, []string{"ethereum", "solana"}, IDs())
}
