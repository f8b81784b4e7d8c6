package spread

import (
	"math"
	"testing"
	"time"
)

func bptr(v bool) *bool { return &v }

func TestQuoteRelativeSpread(t *testing.T) {
	tests := []struct {
		name  string
		quote Quote
		want  float64
		ok    bool
	}{
		{"tight market", Quote{Bid: 9.95, Ask: 10.05}, 0.01, true},
		{"no bid", Quote{Ask: 10.05}, 0, false},
		{"no ask", Quote{Bid: 9.95}, 0, false},
		{"empty quote", Quote{}, 0, false},
		{"crossed market", Quote{Bid: 10.10, Ask: 10.00}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.quote.RelativeSpread()
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RelativeSpread() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuoteITMCall(t *testing.T) {
	tests := []struct {
		name  string
		quote Quote
		spot  float64
		want  bool
	}{
		{"derived ITM", Quote{Strike: 185}, 200, true},
		{"derived OTM", Quote{Strike: 205}, 200, false},
		{"at the money is not ITM", Quote{Strike: 200}, 200, false},
		{"feed flag overrides derivation", Quote{Strike: 185, InTheMoney: bptr(false)}, 200, false},
		{"feed flag asserts ITM", Quote{Strike: 205, InTheMoney: bptr(true)}, 200, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.quote.ITMCall(tt.spot); got != tt.want {
				t.Errorf("ITMCall(%v) = %v, want %v", tt.spot, got, tt.want)
			}
		})
	}
}

func TestPositionWidth(t *testing.T) {
	p := Position{LongStrike: 185, ShortStrike: 190}
	if p.Width() != 5 {
		t.Errorf("Width() = %v, want 5", p.Width())
	}
}

func TestCandidateCost(t *testing.T) {
	c := Candidate{Debit: 4.10}
	if c.Cost() != 410 {
		t.Errorf("Cost() = %v, want 410", c.Cost())
	}
}

func TestCandidateSameSpread(t *testing.T) {
	a := Candidate{LongStrike: 185, ShortStrike: 190, Debit: 4.10}
	b := Candidate{LongStrike: 185, ShortStrike: 190, Debit: 4.00}
	c := Candidate{LongStrike: 185, ShortStrike: 187.5}

	if !a.SameSpread(b) {
		t.Error("identical strike pairs should match regardless of pricing")
	}
	if a.SameSpread(c) {
		t.Error("different short strikes should not match")
	}
}

func TestCandidateRecommendation(t *testing.T) {
	exp := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	c := Candidate{
		LongStrike:          185,
		ShortStrike:         190,
		Width:               5,
		Expiration:          exp,
		DTE:                 45,
		Debit:               4.00,
		MaxProfit:           1.00,
		Breakeven:           189,
		CushionPct:          5.5,
		ReturnOnRiskPct:     25,
		ProbabilityOfProfit: 72,
		TotalScore:          78.4,
	}

	r := c.Recommendation()
	if r.LongStrike != 185 || r.ShortStrike != 190 || r.SpreadWidth != 5 {
		t.Errorf("strikes/width = %v/%v/%v, want 185/190/5", r.LongStrike, r.ShortStrike, r.SpreadWidth)
	}
	if r.EstimatedDebit != 4.00 || r.MaxProfit != 1.00 || r.Breakeven != 189 {
		t.Errorf("economics = %v/%v/%v, want 4/1/189", r.EstimatedDebit, r.MaxProfit, r.Breakeven)
	}
	if !r.Expiration.Equal(exp) || r.DTE != 45 {
		t.Errorf("expiration/dte = %v/%d, want %v/45", r.Expiration, r.DTE, exp)
	}
	if r.ProbabilityOfProfit != 72 || r.TotalScore != 78.4 {
		t.Errorf("PoP/score = %v/%v, want 72/78.4", r.ProbabilityOfProfit, r.TotalScore)
	}
}
