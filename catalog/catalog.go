// Package catalog holds the static token catalog: every (token, quote, venue)
// listing produced by the enrichment job, in file order.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/dexarb/types"
)

// Catalog is immutable once loaded.
type Catalog struct {
	tokens []types.Token
}

// Candidate is one (token, buy venue, sell venue) triple to check.
type Candidate struct {
	Token     types.Token
	BuyVenue  string
	SellVenue string
}

// Load reads a JSON array of listings from path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a JSON array of listings.
func Parse(r io.Reader) (*Catalog, error) {
	var tokens []types.Token
	if err := json.NewDecoder(r).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("failed to decode token catalog: %w", err)
	}
	for i, t := range tokens {
		if t.Symbol == "" || t.Address == (common.Address{}) {
			return nil, fmt.Errorf("catalog entry %d: symbol and address are required", i)
		}
	}
	return New(tokens), nil
}

// New builds a catalog from listings, defaulting missing decimals.
func New(tokens []types.Token) *Catalog {
	out := make([]types.Token, len(tokens))
	for i, t := range tokens {
		if t.Decimals <= 0 {
			t.Decimals = types.DefaultDecimals
		}
		out[i] = t
	}
	return &Catalog{tokens: out}
}

// Tokens returns a copy of every listing.
func (c *Catalog) Tokens() []types.Token {
	out := make([]types.Token, len(c.tokens))
	copy(out, c.tokens)
	return out
}

func (c *Catalog) Len() int {
	return len(c.tokens)
}

// Venues returns the distinct venue ids in first-seen order.
func (c *Catalog) Venues() []string {
	seen := make(map[string]bool)
	var venues []string
	for _, t := range c.tokens {
		if t.DexID != "" && !seen[t.DexID] {
			seen[t.DexID] = true
			venues = append(venues, t.DexID)
		}
	}
	return venues
}

// quotedIn reports whether t is listed against base.
func quotedIn(t, base types.Token) bool {
	if t.QuoteAddress != (common.Address{}) {
		return t.QuoteAddress == base.Address
	}
	return strings.EqualFold(t.Quote, base.Symbol)
}

// Symbols returns the distinct symbols quoted against base, excluding base itself.
func (c *Catalog) Symbols(base types.Token) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, t := range c.tokens {
		if !quotedIn(t, base) || strings.EqualFold(t.Symbol, base.Symbol) || seen[t.Symbol] {
			continue
		}
		seen[t.Symbol] = true
		symbols = append(symbols, t.Symbol)
	}
	return symbols
}

// Listings returns the listings of symbol against base, one per venue.
func (c *Catalog) Listings(symbol string, base types.Token) []types.Token {
	seen := make(map[string]bool)
	var listings []types.Token
	for _, t := range c.tokens {
		if t.Symbol != symbol || !quotedIn(t, base) || t.DexID == "" || seen[t.DexID] {
			continue
		}
		seen[t.DexID] = true
		listings = append(listings, t)
	}
	return listings
}

// Candidates enumerates, in catalog order, every ordered pair of distinct
// venues that both list a symbol against base. Listings of the same symbol
// under different contract addresses are never paired.
func (c *Catalog) Candidates(base types.Token) []Candidate {
	var out []Candidate
	for _, symbol := range c.Symbols(base) {
		listings := c.Listings(symbol, base)
		for _, buy := range listings {
			for _, sell := range listings {
				if buy.DexID == sell.DexID || buy.Address != sell.Address {
					continue
				}
				out = append(out, Candidate{Token: buy, BuyVenue: buy.DexID, SellVenue: sell.DexID})
			}
		}
	}
	return out
}

// Restrict keeps the candidates whose venues are both in venues.
func Restrict(candidates []Candidate, venues []string) []Candidate {
	allowed := make(map[string]bool, len(venues))
	for _, v := range venues {
		allowed[v] = true
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if allowed[c.BuyVenue] && allowed[c.SellVenue] {
			out = append(out, c)
		}
	}
	return out
}
