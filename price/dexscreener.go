// Package price queries the DexScreener search API for USD prices of pairs
// listed on the configured chain.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoPair is returned when the search has no matching pair on the chain.
var ErrNoPair = errors.New("no matching pair")

// HTTPError is a non-200 answer from the API.
type HTTPError struct {
	Status      int
	URL         string
	Body        string
	RateLimited bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.URL, e.Body)
}

type TokenRef struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Pair is one search hit.
type Pair struct {
	ChainID     string   `json:"chainId"`
	DexID       string   `json:"dexId"`
	PairAddress string   `json:"pairAddress"`
	BaseToken   TokenRef `json:"baseToken"`
	QuoteToken  TokenRef `json:"quoteToken"`
	PriceNative string   `json:"priceNative"`
	PriceUSD    string   `json:"priceUsd"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// USD parses the pair's USD price.
func (p Pair) USD() (decimal.Decimal, error) {
	if p.PriceUSD == "" {
		return decimal.Zero, fmt.Errorf("pair %s on %s has no usd price", p.PairAddress, p.DexID)
	}
	return decimal.NewFromString(p.PriceUSD)
}

type searchResponse struct {
	Pairs []Pair `json:"pairs"`
}

type Config struct {
	BaseURL      string
	Chain        string // e.g. "bsc"
	NativeSymbol string
	QuoteSymbol  string
	RateLimit    float64 // requests per second
	Burst        int
	Timeout      time.Duration
}

// Client is safe for concurrent use; all requests share one rate limiter.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
	}
}

// Search returns the pairs matching SYMBOL/QUOTE on the configured chain.
func (c *Client) Search(ctx context.Context, symbol, quote string) ([]Pair, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/latest/dex/search?q=" + url.QueryEscape(symbol+"/"+quote)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price search %s/%s: %w", symbol, quote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPError{
			Status:      resp.StatusCode,
			URL:         u,
			Body:        strings.TrimSpace(string(body)),
			RateLimited: resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("price search %s/%s: decode: %w", symbol, quote, err)
	}

	pairs := sr.Pairs[:0]
	for _, p := range sr.Pairs {
		if p.ChainID == c.cfg.Chain {
			pairs = append(pairs, p)
		}
	}
	c.logger.Debug("Price search",
		zap.String("query", symbol+"/"+quote),
		zap.Int("pairs", len(pairs)))
	return pairs, nil
}

// PriceUSD returns the USD price of symbol/quote as listed on dexID.
func (c *Client) PriceUSD(ctx context.Context, symbol, quote, dexID string) (decimal.Decimal, error) {
	pairs, err := c.Search(ctx, symbol, quote)
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range pairs {
		if p.DexID == dexID {
			return p.USD()
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s/%s on %s", ErrNoPair, symbol, quote, dexID)
}

// NativePriceUSD returns the USD price of the chain's native coin from the
// first listed native/quote pair.
func (c *Client) NativePriceUSD(ctx context.Context) (decimal.Decimal, error) {
	pairs, err := c.Search(ctx, c.cfg.NativeSymbol, c.cfg.QuoteSymbol)
	if err != nil {
		return decimal.Zero, err
	}
	if len(pairs) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrNoPair, c.cfg.NativeSymbol, c.cfg.QuoteSymbol)
	}
	price, err := pairs[0].USD()
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive %s price %s", c.cfg.NativeSymbol, price)
	}
	return price, nil
}
