package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-checkout/pkg/pyth"
	"crypto-checkout/pkg/quote"
	"crypto-checkout/pkg/store"
	"crypto-checkout/pkg/types"
)

type fixedPrices struct {
	feeds map[string]pyth.PriceFeed
}

func (f *fixedPrices) FetchPrices(_ context.Context, symbols []string) (map[string]pyth.PriceFeed, map[string]error, error) {
	feeds := make(map[string]pyth.PriceFeed)
	failures := make(map[string]error)
	for _, sym := range symbols {
		if feed, ok := f.feeds[sym]; ok {
			feeds[sym] = feed
		} else {
			failures[sym] = pyth.ErrNoPriceData
		}
	}
	return feeds, failures, nil
}

func (f *fixedPrices) FetchPrice(_ context.Context, symbol string) (pyth.PriceFeed, error) {
	feed, ok := f.feeds[symbol]
	if !ok {
		return pyth.PriceFeed{}, fmt.Errorf("%w for %s", pyth.ErrNoPriceData, symbol)
	}
	return feed, nil
}

func feedAt(symbol string, price int64) pyth.PriceFeed {
	return pyth.PriceFeed{
		Symbol:      symbol,
		Mantissa:    price * 100_000_000,
		Exponent:    -8,
		PublishTime: time.Now(),
	}
}

func newTestServer(t *testing.T, prices map[string]pyth.PriceFeed) (*httptest.Server, *store.Memory) {
	t.Helper()
	invoices := store.NewMemory()
	s := New(quote.NewEngine(&fixedPrices{feeds: prices}), invoices)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, invoices
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestPricesSingleChain(t *testing.T) {
	srv, _ := newTestServer(t, map[string]pyth.PriceFeed{"SOL": feedAt("SOL", 150)})

	code, body := getJSON(t, srv.URL+"/api/prices?amount=15&chainId=solana")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "solana", data["chainId"])
	assert.Equal(t, "SOL", data["tokenSymbol"])
	assert.InDelta(t, 0.1, data["nativeAmount"].(float64), 1e-9)
	assert.InDelta(t, 150.0, data["price"].(float64), 1e-9)
}

func TestPricesAllChainsOmitsUnpriceable(t *testing.T) {
	// ETH has no feed; the conversions map must omit it rather than report 0.
	srv, _ := newTestServer(t, map[string]pyth.PriceFeed{"SOL": feedAt("SOL", 150)})

	code, body := getJSON(t, srv.URL+"/api/prices?amount=30")
	assert.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]any)
	assert.InDelta(t, 30.0, data["usdAmount"].(float64), 1e-9)

	conversions := data["conversions"].(map[string]any)
	require.Contains(t, conversions, "solana")
	assert.NotContains(t, conversions, "ethereum")

	sol := conversions["solana"].(map[string]any)
	assert.InDelta(t, 0.2, sol["nativeAmount"].(float64), 1e-9)
}

func TestPricesValidation(t *testing.T) {
	srv, _ := newTestServer(t, map[string]pyth.PriceFeed{"SOL": feedAt("SOL", 150)})

	for _, url := range []string{
		"/api/prices",
		"/api/prices?amount=abc",
		"/api/prices?amount=-5&chainId=solana",
		"/api/prices?amount=10&chainId=dogecoin",
	} {
		code, body := getJSON(t, srv.URL+url)
		assert.Equal(t, http.StatusBadRequest, code, url)
		assert.Equal(t, false, body["success"], url)
	}
}

func TestPricesUpstreamTroubleIsBadGateway(t *testing.T) {
	srv, _ := newTestServer(t, map[string]pyth.PriceFeed{})

	code, body := getJSON(t, srv.URL+"/api/prices?amount=10&chainId=solana")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, false, body["success"])
}

func TestInvoiceLookup(t *testing.T) {
	srv, invoices := newTestServer(t, map[string]pyth.PriceFeed{"SOL": feedAt("SOL", 150)})
	require.NoError(t, invoices.CreateInvoice(context.Background(), types.Invoice{
		ID:        "inv-1",
		Name:      "Pro plan",
		AmountUSD: 25,
		Active:    true,
	}))

	code, body := getJSON(t, srv.URL+"/api/invoices/inv-1")
	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "inv-1", data["id"])
	assert.Equal(t, string(types.StatusPending), data["status"])

	code, body = getJSON(t, srv.URL+"/api/invoices/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
}
