package spread

import (
	"io"
	"log"
	"math"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func call(strike, bid, ask float64, oi, vol int64, iv float64) Quote {
	return Quote{
		Strike:       strike,
		Bid:          bid,
		Ask:          ask,
		OpenInterest: oi,
		Volume:       vol,
		ImpliedVol:   iv,
	}
}

// testChain builds a chain around spot=200 where each call is priced at
// intrinsic plus a time value that decays away from the money. The steep
// decay keeps deep ITM spread debits comfortably below their widths.
func testChain(spot float64) ChainSnapshot {
	var calls []Quote
	for strike := 170.0; strike <= 210.0; strike += 2.5 {
		intrinsic := math.Max(spot-strike, 0)
		timeValue := math.Max(0, 4.0-0.2*math.Abs(spot-strike))
		price := intrinsic + timeValue
		calls = append(calls, call(strike, price-0.05, price+0.05, 500, 200, 0.25))
	}
	return ChainSnapshot{
		Symbol:     "ACME",
		Spot:       spot,
		Expiration: time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC),
		DTE:        45,
		Calls:      calls,
	}
}

func TestGenerateCandidatesScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Widths = []float64{5}
	e := newTestEngine(t, cfg)

	snap := ChainSnapshot{
		Symbol: "ACME",
		Spot:   200,
		Calls: []Quote{
			call(185, 16.80, 17.00, 1200, 300, 0.28),
			call(190, 13.00, 13.20, 900, 250, 0.28),
		},
	}

	candidates, discarded := e.generateCandidates(snap, 45)
	if discarded != 0 {
		t.Errorf("discarded = %d, want 0", discarded)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	c := candidates[0]
	if c.LongStrike != 185 || c.ShortStrike != 190 {
		t.Errorf("strikes = %v/%v, want 185/190", c.LongStrike, c.ShortStrike)
	}
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"debit", c.Debit, 4.00},
		{"max profit", c.MaxProfit, 1.00},
		{"breakeven", c.Breakeven, 189.00},
		{"cushion pct", c.CushionPct, 5.5},
		{"return on risk pct", c.ReturnOnRiskPct, 25},
		{"width", c.Width, 5},
	}
	for _, chk := range checks {
		if math.Abs(chk.got-chk.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", chk.name, chk.got, chk.want)
		}
	}
	if c.DTE != 45 {
		t.Errorf("dte = %d, want 45", c.DTE)
	}
}

func TestGenerateCandidatesITMBand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Widths = []float64{5}
	e := newTestEngine(t, cfg)

	// 178 is 11% in the money (too deep), 201 is out of the money entirely.
	// Neither may seed a spread even though both have markets and size.
	snap := ChainSnapshot{
		Symbol: "ACME",
		Spot:   200,
		Calls: []Quote{
			call(178, 22.90, 23.10, 1000, 300, 0.25),
			call(183, 17.90, 18.10, 1000, 300, 0.25),
			call(201, 3.90, 4.10, 1000, 300, 0.25),
		},
	}

	candidates, _ := e.generateCandidates(snap, 45)
	for _, c := range candidates {
		if c.LongStrike == 178 || c.LongStrike == 201 {
			t.Errorf("long strike %v escaped the 3%%-10%% ITM band", c.LongStrike)
		}
	}
}

func TestGenerateCandidatesOpenInterestGate(t *testing.T) {
	tests := []struct {
		name      string
		longOI    int64
		shortOI   int64
		wantCount int
	}{
		{"both legs liquid", 1200, 900, 1},
		{"thin long leg", 5, 900, 0},
		{"thin short leg", 1200, 3, 0},
	}

	cfg := DefaultConfig()
	cfg.Widths = []float64{5}
	e := newTestEngine(t, cfg)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := ChainSnapshot{
				Symbol: "ACME",
				Spot:   200,
				Calls: []Quote{
					call(185, 16.80, 17.00, tt.longOI, 300, 0.28),
					call(190, 13.00, 13.20, tt.shortOI, 250, 0.28),
				},
			}
			candidates, _ := e.generateCandidates(snap, 45)
			if len(candidates) != tt.wantCount {
				t.Errorf("got %d candidates, want %d", len(candidates), tt.wantCount)
			}
		})
	}
}

func TestGenerateCandidatesReturnOnRiskGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Widths = []float64{5}
	e := newTestEngine(t, cfg)

	// Debit 4.60 on a 5-wide spread returns 8.7% on risk, under the 10% floor.
	snap := ChainSnapshot{
		Symbol: "ACME",
		Spot:   200,
		Calls: []Quote{
			call(185, 17.40, 17.60, 1200, 300, 0.28),
			call(190, 13.00, 13.20, 900, 250, 0.28),
		},
	}

	candidates, _ := e.generateCandidates(snap, 45)
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0 (return on risk below floor)", len(candidates))
	}
}

func TestGenerateCandidatesCushionGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Widths = []float64{5}
	e := newTestEngine(t, cfg)

	// Breakeven lands at 197 on a 200 spot: a 1.5% cushion, under the 2% floor,
	// even though the 25% return on risk is attractive.
	snap := ChainSnapshot{
		Symbol: "ACME",
		Spot:   200,
		Calls: []Quote{
			call(193, 8.80, 9.00, 1200, 300, 0.28),
			call(198, 5.00, 5.20, 900, 250, 0.28),
		},
	}

	candidates, _ := e.generateCandidates(snap, 45)
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0 (cushion below floor)", len(candidates))
	}
}

func TestGenerateCandidatesDefaultIV(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Widths = []float64{5}
	e := newTestEngine(t, cfg)

	build := func(iv float64) ChainSnapshot {
		return ChainSnapshot{
			Symbol: "ACME",
			Spot:   200,
			Calls: []Quote{
				call(185, 16.80, 17.00, 1200, 300, iv),
				call(190, 13.00, 13.20, 900, 250, iv),
			},
		}
	}

	t.Run("feed IV is used when present", func(t *testing.T) {
		candidates, _ := e.generateCandidates(build(0.50), 45)
		if len(candidates) != 1 {
			t.Fatalf("got %d candidates, want 1", len(candidates))
		}
		want := probabilityOfProfit(200, 189, 0.50, 45)
		if candidates[0].ProbabilityOfProfit != want {
			t.Errorf("PoP = %v, want %v from the leg's own IV", candidates[0].ProbabilityOfProfit, want)
		}
	})

	t.Run("missing IV falls back to the default", func(t *testing.T) {
		candidates, _ := e.generateCandidates(build(0), 45)
		if len(candidates) != 1 {
			t.Fatalf("got %d candidates, want 1", len(candidates))
		}
		want := probabilityOfProfit(200, 189, cfg.DefaultIV, 45)
		if candidates[0].ProbabilityOfProfit != want {
			t.Errorf("PoP = %v, want %v from the default IV", candidates[0].ProbabilityOfProfit, want)
		}
	})
}

func TestGenerateCandidatesCountsUnpriceable(t *testing.T) {
	cfg := DefaultConfig()
	// A width at the price tick cannot hold a debit strictly inside
	// (0, width) once rounded, so every estimator must fail.
	cfg.Widths = []float64{0.01}
	e := newTestEngine(t, cfg)

	snap := ChainSnapshot{
		Symbol: "ACME",
		Spot:   200,
		Calls: []Quote{
			call(185, 0, 0, 500, 100, 0.25),
			call(185.01, 0, 0, 500, 100, 0.25),
		},
	}

	candidates, discarded := e.generateCandidates(snap, 45)
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(candidates))
	}
	if discarded != 1 {
		t.Errorf("discarded = %d, want 1", discarded)
	}
}

func TestGenerateCandidatesInvariants(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	snap := testChain(200)

	candidates, _ := e.generateCandidates(snap, snap.DTE)
	if len(candidates) == 0 {
		t.Fatal("expected candidates from a dense liquid chain")
	}

	widths := map[float64]bool{2.5: true, 5: true, 10: true}
	for _, c := range candidates {
		if c.LongStrike >= c.ShortStrike {
			t.Errorf("spread %v/%v: long strike not below short", c.LongStrike, c.ShortStrike)
		}
		if !widths[c.Width] {
			t.Errorf("spread %v/%v: width %v not in the configured set", c.LongStrike, c.ShortStrike, c.Width)
		}
		if c.Debit <= 0 || c.Debit >= c.Width {
			t.Errorf("spread %v/%v: debit %v outside (0, %v)", c.LongStrike, c.ShortStrike, c.Debit, c.Width)
		}
		if math.Abs(c.Breakeven-(c.LongStrike+c.Debit)) > 1e-9 {
			t.Errorf("spread %v/%v: breakeven %v != long strike + debit", c.LongStrike, c.ShortStrike, c.Breakeven)
		}
		if math.Abs(c.MaxProfit-(c.Width-c.Debit)) > 1e-9 {
			t.Errorf("spread %v/%v: max profit %v != width - debit", c.LongStrike, c.ShortStrike, c.MaxProfit)
		}
		if c.LongStrike < 180 || c.LongStrike > 194 {
			t.Errorf("spread %v/%v: long strike outside the ITM band", c.LongStrike, c.ShortStrike)
		}
		if c.ReturnOnRiskPct < 10 {
			t.Errorf("spread %v/%v: return on risk %v below the floor", c.LongStrike, c.ShortStrike, c.ReturnOnRiskPct)
		}
		if c.CushionPct < 2 {
			t.Errorf("spread %v/%v: cushion %v below the floor", c.LongStrike, c.ShortStrike, c.CushionPct)
		}
		if c.ProbabilityOfProfit < 5 || c.ProbabilityOfProfit > 95 {
			t.Errorf("spread %v/%v: PoP %v outside [5, 95]", c.LongStrike, c.ShortStrike, c.ProbabilityOfProfit)
		}
	}
}

func TestFindCallNear(t *testing.T) {
	calls := []Quote{
		{Strike: 185},
		{Strike: 190},
		{Strike: 192.5},
	}

	tests := []struct {
		name      string
		target    float64
		tolerance float64
		want      float64
		found     bool
	}{
		{"exact match", 190, 0.01, 190, true},
		{"nearest within tolerance", 192.4, 0.5, 192.5, true},
		{"nothing close enough", 187.5, 0.01, 0, false},
		{"picks the closer of two", 191.4, 2, 192.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := findCallNear(calls, tt.target, tt.tolerance)
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if found && got.Strike != tt.want {
				t.Errorf("strike = %v, want %v", got.Strike, tt.want)
			}
		})
	}
}
