// Package pyth fetches USD price feeds from a Pyth Hermes endpoint.
package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the public Hermes API endpoint.
	DefaultBaseURL = "https://hermes.pyth.network/api"

	// DefaultMaxAge is the freshness threshold beyond which a feed is stale.
	DefaultMaxAge = 60 * time.Second
)

var (
	// ErrUpstreamUnavailable indicates a network or HTTP failure talking to
	// the oracle endpoint. Retryable by the caller.
	ErrUpstreamUnavailable = fmt.Errorf("price oracle unavailable")

	// ErrNoPriceData indicates the oracle returned no usable entry for a
	// symbol. Distinct from staleness.
	ErrNoPriceData = fmt.Errorf("no price data")

	// ErrStalePrice indicates a feed older than the freshness threshold.
	ErrStalePrice = fmt.Errorf("stale price")

	// ErrUnknownSymbol indicates a symbol with no configured feed id.
	ErrUnknownSymbol = fmt.Errorf("no price feed for symbol")
)

// feedIDs maps token symbols to Pyth price feed ids (hex, no 0x prefix).
var feedIDs = map[string]string{
	"SOL": "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d", // SOL/USD
	"ETH": "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace", // ETH/USD
}

// PriceFeed is a single oracle-published quote for one token symbol.
type PriceFeed struct {
	Symbol      string
	Mantissa    int64
	Exponent    int32
	PublishTime time.Time
}

// Price returns mantissa * 10^exponent exactly, without rounding the
// mantissa through a float.
func (f PriceFeed) Price() decimal.Decimal {
	return decimal.New(f.Mantissa, f.Exponent)
}

// PriceFloat returns the price as a float64 for display and quote math.
func (f PriceFeed) PriceFloat() float64 {
	v, _ := f.Price().Float64()
	return v
}

// Valid reports whether the feed carries a usable positive price.
func (f PriceFeed) Valid() bool {
	return f.Price().Sign() > 0
}

// feedResponse mirrors the Hermes latest_price_feeds JSON entries.
type feedResponse struct {
	ID    string    `json:"id"`
	Price feedPrice `json:"price"`
	EMA   feedPrice `json:"ema_price"`
}

type feedPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// Client talks to a Hermes price endpoint. Construct it explicitly and inject
// it where prices are needed; there is no package-level instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxAge     time.Duration
	cacheTTL   time.Duration
	log        *logrus.Entry
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]cachedFeed
}

type cachedFeed struct {
	feed      PriceFeed
	fetchedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxAge sets the freshness threshold for publish times.
func WithMaxAge(d time.Duration) Option {
	return func(c *Client) { c.maxAge = d }
}

// WithCacheTTL enables a short-lived per-symbol cache. Cached entries keep
// their publish time; an entry that has aged past the freshness threshold is
// evicted on read so the next lookup goes back upstream.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) { c.cacheTTL = d }
}

// WithLogger installs a custom logger.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a Hermes price client.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxAge:     DefaultMaxAge,
		log:        logrus.WithField("component", "pyth"),
		now:        time.Now,
		cache:      make(map[string]cachedFeed),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FeedID returns the configured feed id for a symbol.
func FeedID(symbol string) (string, error) {
	id, ok := feedIDs[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return id, nil
}

// FetchPrices resolves prices for a set of symbols with a single batched
// request. The returned maps are disjoint: every requested symbol appears in
// exactly one of them. A malformed or missing entry fails only that symbol.
// The error return is transport-level: when non-nil, neither map is usable
// and the caller may retry.
func (c *Client) FetchPrices(ctx context.Context, symbols []string) (map[string]PriceFeed, map[string]error, error) {
	feeds := make(map[string]PriceFeed)
	errs := make(map[string]error)

	// Resolve feed ids up front; unknown symbols never reach the wire.
	bySymbol := make(map[string]string) // symbol -> feed id
	byID := make(map[string]string)     // normalized feed id -> symbol
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, seen := bySymbol[sym]; seen {
			continue
		}
		id, err := FeedID(sym)
		if err != nil {
			errs[sym] = err
			continue
		}
		bySymbol[sym] = id
		byID[normalizeFeedID(id)] = sym
	}
	if len(bySymbol) == 0 {
		return feeds, errs, nil
	}

	// Serve what the cache can, then fetch the rest in one call.
	pending := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		if feed, ok := c.cached(sym); ok {
			c.placeFeed(feed, feeds, errs)
			continue
		}
		pending = append(pending, sym)
	}
	if len(pending) == 0 {
		return feeds, errs, nil
	}

	entries, err := c.latestPriceFeeds(ctx, pending, bySymbol)
	if err != nil {
		return nil, nil, err
	}

	matched := make(map[string]bool)
	for _, entry := range entries {
		sym, ok := byID[normalizeFeedID(entry.ID)]
		if !ok {
			c.log.WithField("feed_id", entry.ID).Warn("unrequested feed in response")
			continue
		}
		matched[sym] = true
		feed, err := entry.toFeed(sym)
		if err != nil {
			errs[sym] = err
			continue
		}
		c.store(sym, feed)
		c.placeFeed(feed, feeds, errs)
	}
	for _, sym := range pending {
		if !matched[sym] {
			errs[sym] = fmt.Errorf("%w for %s", ErrNoPriceData, sym)
		}
	}
	return feeds, errs, nil
}

// FetchPrice resolves a single symbol. Staleness and absence surface as
// distinct errors.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (PriceFeed, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	feeds, errs, err := c.FetchPrices(ctx, []string{symbol})
	if err != nil {
		return PriceFeed{}, err
	}
	if ferr, ok := errs[symbol]; ok {
		return PriceFeed{}, ferr
	}
	feed, ok := feeds[symbol]
	if !ok {
		return PriceFeed{}, fmt.Errorf("%w for %s", ErrNoPriceData, symbol)
	}
	return feed, nil
}

// latestPriceFeeds performs the batched GET /latest_price_feeds call.
func (c *Client) latestPriceFeeds(ctx context.Context, symbols []string, bySymbol map[string]string) ([]feedResponse, error) {
	params := url.Values{}
	for _, sym := range symbols {
		params.Add("ids[]", bySymbol[sym])
	}
	endpoint := c.baseURL + "/latest_price_feeds?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var entries []feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}
	return entries, nil
}

// toFeed converts one response entry, rejecting malformed or non-positive prices.
func (r feedResponse) toFeed(symbol string) (PriceFeed, error) {
	if r.Price.Price == "" {
		return PriceFeed{}, fmt.Errorf("%w for %s", ErrNoPriceData, symbol)
	}
	mantissa, err := strconv.ParseInt(r.Price.Price, 10, 64)
	if err != nil {
		return PriceFeed{}, fmt.Errorf("%w for %s: bad mantissa %q", ErrNoPriceData, symbol, r.Price.Price)
	}
	feed := PriceFeed{
		Symbol:      symbol,
		Mantissa:    mantissa,
		Exponent:    r.Price.Expo,
		PublishTime: time.Unix(r.Price.PublishTime, 0),
	}
	if !feed.Valid() {
		return PriceFeed{}, fmt.Errorf("%w for %s: non-positive price", ErrNoPriceData, symbol)
	}
	return feed, nil
}

// placeFeed routes a decoded feed into the fresh or stale bucket.
func (c *Client) placeFeed(feed PriceFeed, feeds map[string]PriceFeed, errs map[string]error) {
	if age := c.now().Sub(feed.PublishTime); c.maxAge > 0 && age > c.maxAge {
		errs[feed.Symbol] = fmt.Errorf("%w for %s: published %s ago", ErrStalePrice, feed.Symbol, age.Round(time.Second))
		return
	}
	feeds[feed.Symbol] = feed
}

func (c *Client) cached(symbol string) (PriceFeed, bool) {
	if c.cacheTTL <= 0 {
		return PriceFeed{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[symbol]
	if !ok || c.now().Sub(entry.fetchedAt) > c.cacheTTL {
		return PriceFeed{}, false
	}
	// A cached feed whose publish time has aged past the freshness threshold
	// is evicted rather than served, so a retry reaches upstream instead of
	// replaying the same stale answer for the rest of the TTL.
	if c.maxAge > 0 && c.now().Sub(entry.feed.PublishTime) > c.maxAge {
		delete(c.cache, symbol)
		return PriceFeed{}, false
	}
	return entry.feed, true
}

func (c *Client) store(symbol string, feed PriceFeed) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[symbol] = cachedFeed{feed: feed, fetchedAt: c.now()}
}

func normalizeFeedID(id string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "0x"))
}
