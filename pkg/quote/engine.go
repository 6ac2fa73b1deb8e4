// Package quote converts fixed USD amounts into native-token amounts using
// oracle price feeds.
package quote

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"crypto-checkout/pkg/chains"
	"crypto-checkout/pkg/pyth"
	"crypto-checkout/pkg/types"
)

// ErrInvalidAmount is returned for non-positive or non-finite USD amounts.
var ErrInvalidAmount = fmt.Errorf("invalid usd amount")

// PriceSource resolves oracle price feeds. Satisfied by *pyth.Client.
type PriceSource interface {
	FetchPrices(ctx context.Context, symbols []string) (map[string]pyth.PriceFeed, map[string]error, error)
	FetchPrice(ctx context.Context, symbol string) (pyth.PriceFeed, error)
}

// Engine builds per-chain quotes from a price source and the chain registry.
type Engine struct {
	prices PriceSource
	log    *logrus.Entry
	now    func() time.Time
}

// NewEngine creates a quote engine backed by the given price source.
func NewEngine(prices PriceSource) *Engine {
	return &Engine{
		prices: prices,
		log:    logrus.WithField("component", "quote"),
		now:    time.Now,
	}
}

// Convert quotes usdAmount on every requested chain. An unregistered chain
// id rejects the whole request, the same way ConvertSingle does. Chains that
// share a native token cost a single upstream feed fetch. Chains whose price
// could not be resolved on the batched path get one independent retry through
// the single-feed path; chains that still fail are omitted from the result,
// never returned with a zero amount. A transport-level error means the whole
// batch was unreachable and the caller may retry.
func (e *Engine) Convert(ctx context.Context, usdAmount float64, chainIDs []string) (map[string]types.Quote, error) {
	if err := validateAmount(usdAmount); err != nil {
		return nil, err
	}

	// Union of needed symbols across the requested chains.
	symbols := make([]string, 0, len(chainIDs))
	seen := make(map[string]bool)
	requested := make([]chains.Chain, 0, len(chainIDs))
	for _, id := range chainIDs {
		chain, err := chains.Get(id)
		if err != nil {
			return nil, err
		}
		requested = append(requested, chain)
		if !seen[chain.TokenSymbol] {
			seen[chain.TokenSymbol] = true
			symbols = append(symbols, chain.TokenSymbol)
		}
	}
	if len(requested) == 0 {
		return map[string]types.Quote{}, nil
	}

	feeds, feedErrs, err := e.prices.FetchPrices(ctx, symbols)
	if err != nil {
		return nil, err
	}

	result := make(map[string]types.Quote, len(requested))
	var missing []chains.Chain
	for _, chain := range requested {
		feed, ok := feeds[chain.TokenSymbol]
		if !ok {
			e.log.WithFields(logrus.Fields{
				"chain_id": chain.ID,
				"symbol":   chain.TokenSymbol,
			}).WithError(feedErrs[chain.TokenSymbol]).Warn("batched price missing, will retry individually")
			missing = append(missing, chain)
			continue
		}
		result[chain.ID] = e.buildQuote(chain, usdAmount, feed)
	}

	// Second, independent chance per unpriced chain. Successes already in
	// the result map are kept regardless of what happens here.
	if len(missing) > 0 {
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for _, chain := range missing {
			wg.Add(1)
			go func(chain chains.Chain) {
				defer wg.Done()
				q, err := e.ConvertSingle(ctx, usdAmount, chain.ID)
				if err != nil {
					e.log.WithField("chain_id", chain.ID).WithError(err).Warn("price unavailable")
					return
				}
				mu.Lock()
				result[chain.ID] = q
				mu.Unlock()
			}(chain)
		}
		wg.Wait()
	}

	return result, nil
}

// ConvertSingle quotes usdAmount on one chain through the single-feed path.
// Used both directly and as the fallback when the batched map comes back
// without an expected entry.
func (e *Engine) ConvertSingle(ctx context.Context, usdAmount float64, chainID string) (types.Quote, error) {
	if err := validateAmount(usdAmount); err != nil {
		return types.Quote{}, err
	}
	chain, err := chains.Get(chainID)
	if err != nil {
		return types.Quote{}, err
	}
	feed, err := e.prices.FetchPrice(ctx, chain.TokenSymbol)
	if err != nil {
		return types.Quote{}, err
	}
	return e.buildQuote(chain, usdAmount, feed), nil
}

func (e *Engine) buildQuote(chain chains.Chain, usdAmount float64, feed pyth.PriceFeed) types.Quote {
	price := feed.PriceFloat()
	return types.Quote{
		ChainID:      chain.ID,
		USDAmount:    usdAmount,
		NativeAmount: usdAmount / price,
		TokenSymbol:  chain.TokenSymbol,
		Price:        price,
		ComputedAt:   e.now(),
	}
}

func validateAmount(usdAmount float64) error {
	if usdAmount <= 0 || math.IsNaN(usdAmount) || math.IsInf(usdAmount, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, usdAmount)
	}
	return nil
}

// DefaultRefreshInterval matches the checkout page's 30 second auto-refresh.
const DefaultRefreshInterval = 30 * time.Second

// Refresher re-quotes a fixed USD amount on an interval and hands each
// result to a callback. A refreshed quote never invalidates a transfer
// already handed to the signer; it only affects what is offered next.
type Refresher struct {
	Engine    *Engine
	USDAmount float64
	ChainIDs  []string
	Interval  time.Duration
	OnQuotes  func(map[string]types.Quote)

	log *logrus.Entry
}

// Run blocks, refreshing quotes until the context is cancelled. The first
// refresh happens immediately.
func (r *Refresher) Run(ctx context.Context) error {
	if r.Engine == nil || r.OnQuotes == nil {
		return fmt.Errorf("refresher not configured")
	}
	if r.Interval <= 0 {
		r.Interval = DefaultRefreshInterval
	}
	if r.log == nil {
		r.log = logrus.WithField("component", "quote-refresher")
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		quotes, err := r.Engine.Convert(ctx, r.USDAmount, r.ChainIDs)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.WithError(err).Warn("quote refresh failed")
		} else {
			r.OnQuotes(quotes)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
