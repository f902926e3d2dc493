// Package token holds the fixed token set the engine trades against:
// one settlement token (the unit of account) plus N tradable memecoins.
// The set is loaded once at process start and is read-only afterwards.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/suipaper/paper-engine/internal/model"
)

var (
	// ErrUnknownSymbol is returned when a symbol is not in the token set.
	ErrUnknownSymbol = errors.New("token: unknown symbol")

	// ErrInvalidSet is returned when a loaded token set is malformed:
	// no settlement token, duplicate symbols, or non-positive base prices.
	ErrInvalidSet = errors.New("token: invalid token set")
)

// Registry is the immutable token set keyed by symbol.
type Registry struct {
	tokens     map[string]model.Token
	settlement string
}

// DefaultRegistry returns the built-in token set: SUI as settlement
// plus the four tradable memecoins.
func DefaultRegistry() *Registry {
	r, err := NewRegistry([]model.Token{
		{Symbol: "SUI", Name: "Sui", BasePrice: decimal.NewFromInt(1), Settlement: true},
		{Symbol: "MOON", Name: "Moon", BasePrice: decimal.NewFromFloat(0.5)},
		{Symbol: "STAR", Name: "Star", BasePrice: decimal.NewFromFloat(0.75)},
		{Symbol: "ROCKET", Name: "Rocket", BasePrice: decimal.NewFromFloat(1.25)},
		{Symbol: "GALAXY", Name: "Galaxy", BasePrice: decimal.NewFromFloat(0.9)},
	})
	if err != nil {
		panic(err) // built-in set is always valid
	}
	return r
}

// NewRegistry validates and builds a registry from a token list.
// Exactly one token must be flagged as settlement.
func NewRegistry(tokens []model.Token) (*Registry, error) {
	r := &Registry{tokens: make(map[string]model.Token, len(tokens))}

	for _, t := range tokens {
		sym := Normalize(t.Symbol)
		if sym == "" {
			return nil, fmt.Errorf("%w: empty symbol", ErrInvalidSet)
		}
		if _, exists := r.tokens[sym]; exists {
			return nil, fmt.Errorf("%w: duplicate symbol %s", ErrInvalidSet, sym)
		}
		if t.BasePrice.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: %s base price must be positive", ErrInvalidSet, sym)
		}
		if t.Settlement {
			if r.settlement != "" {
				return nil, fmt.Errorf("%w: multiple settlement tokens (%s, %s)", ErrInvalidSet, r.settlement, sym)
			}
			r.settlement = sym
		}
		t.Symbol = sym
		r.tokens[sym] = t
	}

	if r.settlement == "" {
		return nil, fmt.Errorf("%w: no settlement token", ErrInvalidSet)
	}
	if len(r.tokens) < 2 {
		return nil, fmt.Errorf("%w: need at least one tradable token", ErrInvalidSet)
	}
	return r, nil
}

// LoadFile reads a token set from a JSON file: an array of
// {symbol, name, base_price, settlement} objects.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("token: read %s: %w", path, err)
	}
	var tokens []model.Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("token: parse %s: %w", path, err)
	}
	return NewRegistry(tokens)
}

// Normalize maps free-form user input onto the canonical symbol form.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Get resolves a symbol to its token definition.
func (r *Registry) Get(symbol string) (model.Token, error) {
	t, ok := r.tokens[Normalize(symbol)]
	if !ok {
		return model.Token{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return t, nil
}

// Settlement returns the settlement token.
func (r *Registry) Settlement() model.Token {
	return r.tokens[r.settlement]
}

// Tradable returns all non-settlement tokens sorted by symbol.
func (r *Registry) Tradable() []model.Token {
	out := make([]model.Token, 0, len(r.tokens)-1)
	for _, t := range r.tokens {
		if !t.Settlement {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
