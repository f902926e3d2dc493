// Package oracle produces simulated prices for the fixed token set.
//
// The settlement token always prices at its reference value — it is the
// unit of account. Every tradable token prices at base * (1 + f) with f
// drawn uniformly from [-0.05, 0.05] on each call, so two calls for the
// same symbol may disagree. Callers that need internally consistent
// figures across several metrics take one Snapshot and reuse it.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The uniform draw happens in float64 and is immediately converted.
package oracle

import (
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/suipaper/paper-engine/internal/model"
	"github.com/suipaper/paper-engine/internal/token"
)

// PriceScale is the number of decimal places for price rounding.
const PriceScale int32 = 8

// Fluctuation bounds for simulated market data.
var (
	maxFluctuation = 0.05 // per-call price deviation, ±5%
	maxChange24h   = 10.0 // displayed 24h change, ±10%
	minVolume      = 1000.0
	maxVolume      = 10000.0
)

// Oracle draws simulated prices for registry tokens. Safe for
// concurrent use; the underlying rand.Rand is mutex-guarded.
type Oracle struct {
	tokens *token.Registry
	mu     sync.Mutex
	rng    *rand.Rand
}

// New creates an oracle over the given token set. Pass nil rng to use
// a randomly seeded source; tests inject a seeded one for determinism.
func New(tokens *token.Registry, rng *rand.Rand) *Oracle {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Oracle{tokens: tokens, rng: rng}
}

// Price returns the current simulated price for a symbol.
// Fails with token.ErrUnknownSymbol for symbols outside the set.
func (o *Oracle) Price(symbol string) (decimal.Decimal, error) {
	t, err := o.tokens.Get(symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if t.Settlement {
		return t.BasePrice, nil
	}

	f := o.uniform(-maxFluctuation, maxFluctuation)
	return t.BasePrice.Mul(decimal.NewFromFloat(1 + f)).Round(PriceScale), nil
}

// Snapshot draws one price per symbol for a single reporting pass.
// Reusing the returned map keeps valuation and PnL mutually consistent.
func (o *Oracle) Snapshot(symbols []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		if _, ok := prices[token.Normalize(sym)]; ok {
			continue
		}
		p, err := o.Price(sym)
		if err != nil {
			return nil, err
		}
		prices[token.Normalize(sym)] = p
	}
	return prices, nil
}

// Quotes returns a simulated market view of every tradable token:
// live price plus displayed 24h change and volume.
func (o *Oracle) Quotes() []model.Quote {
	tradable := o.tokens.Tradable()
	quotes := make([]model.Quote, 0, len(tradable))

	for _, t := range tradable {
		price, _ := o.Price(t.Symbol) // symbol comes from the registry
		quotes = append(quotes, model.Quote{
			Symbol:    t.Symbol,
			Name:      t.Name,
			Price:     price,
			Change24h: decimal.NewFromFloat(o.uniform(-maxChange24h, maxChange24h)).Round(2),
			Volume:    decimal.NewFromFloat(o.uniform(minVolume, maxVolume)).Round(2),
		})
	}
	return quotes
}

// uniform draws from [lo, hi).
func (o *Oracle) uniform(lo, hi float64) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return lo + o.rng.Float64()*(hi-lo)
}
