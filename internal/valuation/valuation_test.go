package valuation_test

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/suipaper/paper-engine/internal/ledger"
	"github.com/suipaper/paper-engine/internal/token"
	"github.com/suipaper/paper-engine/internal/valuation"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fixedPrices serves both the ledger (Price) and the reporter
// (Snapshot) from one mutable table.
type fixedPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func newFixedPrices() *fixedPrices {
	return &fixedPrices{prices: map[string]decimal.Decimal{
		"MOON": d(0.5),
		"STAR": d(0.75),
	}}
}

func (f *fixedPrices) Price(symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Decimal{}, token.ErrUnknownSymbol
	}
	return p, nil
}

func (f *fixedPrices) Snapshot(symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		p, err := f.Price(sym)
		if err != nil {
			return nil, err
		}
		out[sym] = p
	}
	return out, nil
}

func (f *fixedPrices) set(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func newTestReporter() (*valuation.Reporter, *ledger.Ledger, *fixedPrices) {
	prices := newFixedPrices()
	l := ledger.New(token.DefaultRegistry(), prices)
	return valuation.NewReporter(l, prices), l, prices
}

func TestReport_EmptyAccount(t *testing.T) {
	r, _, _ := newTestReporter()

	report, err := r.Report("alice")
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	if !report.PortfolioValue.IsZero() {
		t.Errorf("expected zero value, got %s", report.PortfolioValue)
	}
	if !report.UnrealizedPnL.IsZero() {
		t.Errorf("expected zero PnL, got %s", report.UnrealizedPnL)
	}
	// Defined policy: zero percent when value is zero, never a division error.
	if !report.PnLPercent.IsZero() {
		t.Errorf("expected zero PnL percent, got %s", report.PnLPercent)
	}
	if !report.Balance.Equal(ledger.StartingBalance) {
		t.Errorf("expected seeded balance, got %s", report.Balance)
	}
	if len(report.Holdings) != 0 {
		t.Errorf("expected no holding rows, got %d", len(report.Holdings))
	}
}

func TestReport_ValueAndPnL(t *testing.T) {
	r, l, prices := newTestReporter()

	if _, err := l.Buy("alice", "MOON", d(100)); err != nil { // 200 @ 0.5
		t.Fatal(err)
	}
	prices.set("MOON", d(0.6))

	report, err := r.Report("alice")
	if err != nil {
		t.Fatal(err)
	}

	// value = 200 * 0.6, pnl = (0.6 - 0.5) * 200
	if !report.PortfolioValue.Equal(d(120)) {
		t.Errorf("expected value 120, got %s", report.PortfolioValue)
	}
	if !report.UnrealizedPnL.Equal(d(20)) {
		t.Errorf("expected PnL 20, got %s", report.UnrealizedPnL)
	}
	wantPct := d(20).Div(d(120)).Mul(d(100)).Round(2)
	if !report.PnLPercent.Equal(wantPct) {
		t.Errorf("expected PnL percent %s, got %s", wantPct, report.PnLPercent)
	}

	if len(report.Holdings) != 1 {
		t.Fatalf("expected 1 holding row, got %d", len(report.Holdings))
	}
	row := report.Holdings[0]
	if row.Symbol != "MOON" || !row.Price.Equal(d(0.6)) || !row.Value.Equal(d(120)) {
		t.Errorf("unexpected holding row: %+v", row)
	}
}

func TestReport_MultipleHoldings(t *testing.T) {
	r, l, prices := newTestReporter()

	if _, err := l.Buy("alice", "MOON", d(100)); err != nil { // 200 @ 0.5
		t.Fatal(err)
	}
	if _, err := l.Buy("alice", "STAR", d(75)); err != nil { // 100 @ 0.75
		t.Fatal(err)
	}
	prices.set("MOON", d(0.4)) // underwater
	prices.set("STAR", d(1.0)) // up

	report, err := r.Report("alice")
	if err != nil {
		t.Fatal(err)
	}

	// value = 200*0.4 + 100*1.0 = 180
	if !report.PortfolioValue.Equal(d(180)) {
		t.Errorf("expected value 180, got %s", report.PortfolioValue)
	}
	// pnl = (0.4-0.5)*200 + (1.0-0.75)*100 = -20 + 25 = 5
	if !report.UnrealizedPnL.Equal(d(5)) {
		t.Errorf("expected PnL 5, got %s", report.UnrealizedPnL)
	}

	// Rows sorted by symbol.
	if len(report.Holdings) != 2 || report.Holdings[0].Symbol != "MOON" || report.Holdings[1].Symbol != "STAR" {
		t.Errorf("expected sorted rows [MOON STAR], got %+v", report.Holdings)
	}
	if !report.Holdings[0].PnL.Equal(d(-20)) {
		t.Errorf("expected MOON PnL -20, got %s", report.Holdings[0].PnL)
	}
}

// Totals must be internally consistent: the sums of the per-row value
// and PnL columns equal the report totals, because every figure comes
// from one snapshot.
func TestReport_InternalConsistency(t *testing.T) {
	r, l, _ := newTestReporter()

	if _, err := l.Buy("alice", "MOON", d(100)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Buy("alice", "STAR", d(150)); err != nil {
		t.Fatal(err)
	}

	report, err := r.Report("alice")
	if err != nil {
		t.Fatal(err)
	}

	var valueSum, pnlSum decimal.Decimal
	for _, row := range report.Holdings {
		valueSum = valueSum.Add(row.Value)
		pnlSum = pnlSum.Add(row.PnL)
	}
	if !valueSum.Equal(report.PortfolioValue) {
		t.Errorf("row values sum to %s, report says %s", valueSum, report.PortfolioValue)
	}
	if !pnlSum.Equal(report.UnrealizedPnL) {
		t.Errorf("row PnLs sum to %s, report says %s", pnlSum, report.UnrealizedPnL)
	}
}

func TestReport_NoMutation(t *testing.T) {
	r, l, _ := newTestReporter()

	if _, err := l.Buy("alice", "MOON", d(100)); err != nil {
		t.Fatal(err)
	}
	before := l.Account("alice")

	if _, err := r.Report("alice"); err != nil {
		t.Fatal(err)
	}

	after := l.Account("alice")
	if !after.Balance.Equal(before.Balance) || len(after.Holdings) != len(before.Holdings) {
		t.Error("reporting must not mutate the account")
	}
}
