// Package valuation derives portfolio value and unrealized PnL from
// ledger state. Pure computation — nothing here mutates an account.
//
// Every report draws one price snapshot and prices all derived metrics
// from it, so portfolio value and PnL can never disagree about what a
// token was worth within a single report.
package valuation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/suipaper/paper-engine/internal/ledger"
	"github.com/suipaper/paper-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Snapshotter supplies one consistent price set per reporting pass.
// Satisfied by *oracle.Oracle.
type Snapshotter interface {
	Snapshot(symbols []string) (map[string]decimal.Decimal, error)
}

// Reporter computes portfolio reports over a ledger and a price source.
type Reporter struct {
	ledger *ledger.Ledger
	prices Snapshotter
}

// NewReporter creates a reporter bound to a ledger and price source.
func NewReporter(l *ledger.Ledger, prices Snapshotter) *Reporter {
	return &Reporter{ledger: l, prices: prices}
}

// Report values a user's account: total portfolio value, unrealized
// PnL, PnL percent, and the per-holding breakdown, all from a single
// price snapshot. An account with no holdings reports zero value and
// zero PnL.
func (r *Reporter) Report(userID string) (*model.PortfolioReport, error) {
	acct := r.ledger.Account(userID)

	symbols := make([]string, 0, len(acct.Holdings))
	for sym := range acct.Holdings {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	prices, err := r.prices.Snapshot(symbols)
	if err != nil {
		return nil, err
	}

	report := &model.PortfolioReport{
		UserID:        userID,
		Balance:       acct.Balance,
		ReferralBonus: acct.ReferralBonus,
		Holdings:      make([]model.HoldingReport, 0, len(symbols)),
	}

	for _, sym := range symbols {
		h := acct.Holdings[sym]
		price := prices[sym]
		value := h.Quantity.Mul(price)
		pnl := price.Sub(h.AvgCost).Mul(h.Quantity)

		report.Holdings = append(report.Holdings, model.HoldingReport{
			Symbol:     sym,
			Quantity:   h.Quantity,
			AvgCost:    h.AvgCost,
			Price:      price,
			Value:      value,
			PnL:        pnl,
			PnLPercent: pnlPercent(pnl, value),
		})

		report.PortfolioValue = report.PortfolioValue.Add(value)
		report.UnrealizedPnL = report.UnrealizedPnL.Add(pnl)
	}

	report.PnLPercent = pnlPercent(report.UnrealizedPnL, report.PortfolioValue)
	return report, nil
}

// pnlPercent is pnl/value*100, or zero when value is zero. The zero is
// a defined policy for empty portfolios, not an error.
func pnlPercent(pnl, value decimal.Decimal) decimal.Decimal {
	if !value.IsPositive() {
		return decimal.Zero
	}
	return pnl.Div(value).Mul(hundred).Round(2)
}
