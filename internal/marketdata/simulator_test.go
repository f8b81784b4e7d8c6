package marketdata

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

// fixedClock pins the simulator to a Friday so the weekly expiration grid is
// stable.
func fixedClock() time.Time {
	return time.Date(2026, 8, 21, 15, 30, 0, 0, time.UTC)
}

func TestSimulator_DeterministicBySeed(t *testing.T) {
	ctx := context.Background()
	a := NewSimulatorAt(7, fixedClock)
	b := NewSimulatorAt(7, fixedClock)

	qa, err := a.GetQuote(ctx, "SPY")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	qb, _ := b.GetQuote(ctx, "SPY")
	if !reflect.DeepEqual(qa, qb) {
		t.Fatalf("same seed produced different quotes: %+v vs %+v", qa, qb)
	}

	exp := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	ca, err := a.GetChain(ctx, "SPY", exp)
	if err != nil {
		t.Fatalf("GetChain() error = %v", err)
	}
	cb, _ := b.GetChain(ctx, "SPY", exp)
	if !reflect.DeepEqual(ca, cb) {
		t.Fatal("same seed produced different chains")
	}

	ha, err := a.GetDailyHistory(ctx, "SPY", 30)
	if err != nil {
		t.Fatalf("GetDailyHistory() error = %v", err)
	}
	hb, _ := b.GetDailyHistory(ctx, "SPY", 30)
	if !reflect.DeepEqual(ha, hb) {
		t.Fatal("same seed produced different history")
	}

	other := NewSimulatorAt(8, fixedClock)
	qo, _ := other.GetQuote(ctx, "SPY")
	if qo.Last == qa.Last {
		t.Fatalf("different seeds produced the same spot %.2f", qa.Last)
	}
}

func TestSimulator_CallOrderIndependence(t *testing.T) {
	ctx := context.Background()
	exp := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)

	warmed := NewSimulatorAt(7, fixedClock)
	_, _ = warmed.GetQuote(ctx, "SPY")
	_, _ = warmed.GetDailyHistory(ctx, "SPY", 10)
	chainAfterOtherCalls, err := warmed.GetChain(ctx, "SPY", exp)
	if err != nil {
		t.Fatalf("GetChain() error = %v", err)
	}

	cold := NewSimulatorAt(7, fixedClock)
	chainAlone, _ := cold.GetChain(ctx, "SPY", exp)

	if !reflect.DeepEqual(chainAfterOtherCalls, chainAlone) {
		t.Fatal("chain output depends on prior calls")
	}
}

func TestSimulator_ChainShape(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulatorAt(7, fixedClock)

	snap, err := sim.GetChainNearestDTE(ctx, "SPY", 45)
	if err != nil {
		t.Fatalf("GetChainNearestDTE() error = %v", err)
	}
	// Weekly Fridays from a Friday clock put 42 closest to 45.
	if snap.DTE != 42 {
		t.Fatalf("DTE = %d, want 42", snap.DTE)
	}
	if snap.Spot <= 0 {
		t.Fatalf("Spot = %.2f, want positive", snap.Spot)
	}
	if len(snap.Calls) == 0 || len(snap.Calls) != len(snap.Puts) {
		t.Fatalf("calls/puts = %d/%d, want equal non-empty grids", len(snap.Calls), len(snap.Puts))
	}

	var atm spread.Quote
	bestDist := -1.0
	for i, q := range snap.Calls {
		if i > 0 && q.Strike <= snap.Calls[i-1].Strike {
			t.Fatalf("calls not ascending at %d: %.2f after %.2f", i, q.Strike, snap.Calls[i-1].Strike)
		}
		if q.Ask < q.Bid {
			t.Fatalf("crossed market at strike %.2f: bid %.2f ask %.2f", q.Strike, q.Bid, q.Ask)
		}
		dist := q.Strike - snap.Spot
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			atm = q
		}
		if q.InTheMoney == nil {
			t.Fatalf("strike %.2f missing moneyness flag", q.Strike)
		}
		if got, want := *q.InTheMoney, q.Strike < snap.Spot; got != want {
			t.Fatalf("call %.2f at spot %.2f: InTheMoney = %v, want %v", q.Strike, snap.Spot, got, want)
		}
	}
	deepITM := snap.Calls[0]
	farOTM := snap.Calls[len(snap.Calls)-1]

	if atm.OpenInterest <= farOTM.OpenInterest {
		t.Fatalf("OI should decay away from the money: atm %d vs far %d", atm.OpenInterest, farOTM.OpenInterest)
	}

	atmRel, ok := atm.RelativeSpread()
	if !ok {
		t.Fatalf("ATM quote %+v has no market", atm)
	}
	itmRel, ok := deepITM.RelativeSpread()
	if !ok {
		t.Fatalf("deep ITM quote %+v has no market", deepITM)
	}
	if atmRel >= itmRel {
		t.Fatalf("spreads should widen with distance: atm %.4f vs deep %.4f", atmRel, itmRel)
	}

	for _, q := range snap.Puts {
		if q.InTheMoney == nil {
			t.Fatalf("put %.2f missing moneyness flag", q.Strike)
		}
		if got, want := *q.InTheMoney, q.Strike > snap.Spot; got != want {
			t.Fatalf("put %.2f at spot %.2f: InTheMoney = %v, want %v", q.Strike, snap.Spot, got, want)
		}
	}
}

func TestSimulator_ExpirationsAreUpcomingFridays(t *testing.T) {
	sim := NewSimulatorAt(7, fixedClock)
	exps, err := sim.GetExpirations(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("GetExpirations() error = %v", err)
	}
	if len(exps) != 10 {
		t.Fatalf("len(exps) = %d, want 10", len(exps))
	}
	today := fixedClock().Truncate(24 * time.Hour)
	for i, exp := range exps {
		if exp.Weekday() != time.Friday {
			t.Fatalf("exps[%d] = %v, want a Friday", i, exp)
		}
		if exp.Before(today) {
			t.Fatalf("exps[%d] = %v is in the past", i, exp)
		}
		if i > 0 && !exps[i-1].Before(exp) {
			t.Fatalf("exps not ascending at %d", i)
		}
	}
}

func TestSimulator_HistoryEndsAtSpot(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulatorAt(7, fixedClock)

	const days = 40
	bars, err := sim.GetDailyHistory(ctx, "SPY", days)
	if err != nil {
		t.Fatalf("GetDailyHistory() error = %v", err)
	}
	if len(bars) != days {
		t.Fatalf("len(bars) = %d, want %d", len(bars), days)
	}

	quote, _ := sim.GetQuote(ctx, "SPY")
	last := bars[len(bars)-1]
	if last.Close != quote.Last {
		t.Fatalf("last close %.2f != spot %.2f", last.Close, quote.Last)
	}

	var prev time.Time
	for i, b := range bars {
		d, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			t.Fatalf("bars[%d].Date = %q: %v", i, b.Date, err)
		}
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("bars[%d] dated %s falls on a weekend", i, b.Date)
		}
		if i > 0 && !prev.Before(d) {
			t.Fatalf("bars not ascending at %d: %s after %s", i, b.Date, prev.Format("2006-01-02"))
		}
		prev = d

		hi := b.Open
		if b.Close > hi {
			hi = b.Close
		}
		lo := b.Open
		if b.Close < lo {
			lo = b.Close
		}
		if b.High < hi || b.Low > lo {
			t.Fatalf("bars[%d] OHLC inconsistent: %+v", i, b)
		}
	}
}

func TestSimulator_HistoryRejectsNonPositiveDays(t *testing.T) {
	sim := NewSimulatorAt(7, fixedClock)
	if _, err := sim.GetDailyHistory(context.Background(), "SPY", 0); err == nil {
		t.Fatal("expected error for zero days")
	}
}

func TestSimulator_EngineSmoke(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulatorAt(7, fixedClock)

	snap, err := sim.GetChainNearestDTE(ctx, "SPY", 45)
	if err != nil {
		t.Fatalf("GetChainNearestDTE() error = %v", err)
	}

	engine, err := spread.New(spread.DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	first := engine.SelectSpreads(*snap, nil)
	second := engine.SelectSpreads(*snap, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("selection over simulated chain is not deterministic")
	}

	if len(first.Alternatives) > 2 {
		t.Fatalf("alternatives = %d, want at most 2", len(first.Alternatives))
	}
	if first.Primary != nil {
		p := first.Primary
		width := p.ShortStrike - p.LongStrike
		if p.EstimatedDebit <= 0 || p.EstimatedDebit >= width {
			t.Fatalf("debit %.2f outside (0, %.2f)", p.EstimatedDebit, width)
		}
		if p.DTE != snap.DTE {
			t.Fatalf("recommendation DTE = %d, want %d", p.DTE, snap.DTE)
		}
	}
}

func TestStrikeInterval(t *testing.T) {
	tests := []struct {
		spot float64
		want float64
	}{
		{12, 0.5},
		{24.99, 0.5},
		{25, 1},
		{99.9, 1},
		{100, 2.5},
		{249, 2.5},
		{250, 5},
		{400, 5},
	}
	for _, tt := range tests {
		if got := strikeInterval(tt.spot); got != tt.want {
			t.Errorf("strikeInterval(%.2f) = %.2f, want %.2f", tt.spot, got, tt.want)
		}
	}
}
