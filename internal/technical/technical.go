// Package technical derives the optional selection context for a symbol:
// moving averages and swing levels from daily bars, positioning levels (max
// pain, open-interest walls) from the option chain, and a modeled fair
// value. Everything degrades field by field; insufficient input drops a
// field rather than failing the build.
package technical

import (
	"fmt"
	"math"
	"sort"

	"github.com/eddiefleurent/schrute_spreads/internal/marketdata"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

// Config tunes level detection and fair value modeling.
type Config struct {
	// SwingWindow is how many bars on each side a local extremum must
	// dominate to count as a swing point.
	SwingWindow int
	// StrongTouches promotes a clustered level to strong once this many swing
	// points land on it.
	StrongTouches int
	// TouchTolerance is the relative distance under which two swing points
	// merge into one level (0.0075 = 0.75%).
	TouchTolerance float64
	// WallCount caps how many put/call walls are reported per side.
	WallCount int
	// FairValueOverrides maps symbols to a modeled fair price that replaces
	// the moving-average blend.
	FairValueOverrides map[string]float64
}

// DefaultConfig returns the builder defaults.
func DefaultConfig() Config {
	return Config{
		SwingWindow:    3,
		StrongTouches:  3,
		TouchTolerance: 0.0075,
		WallCount:      3,
	}
}

// Validate checks the configuration for values the builder cannot work with.
func (c *Config) Validate() error {
	if c.SwingWindow <= 0 {
		return fmt.Errorf("swing window %d must be positive", c.SwingWindow)
	}
	if c.StrongTouches < 2 {
		return fmt.Errorf("strong touches %d must be at least 2", c.StrongTouches)
	}
	if c.TouchTolerance <= 0 || c.TouchTolerance >= 0.1 {
		return fmt.Errorf("touch tolerance %.4f must be in (0, 0.1)", c.TouchTolerance)
	}
	if c.WallCount <= 0 {
		return fmt.Errorf("wall count %d must be positive", c.WallCount)
	}
	for symbol, fv := range c.FairValueOverrides {
		if fv <= 0 {
			return fmt.Errorf("fair value override for %s must be positive, got %.2f", symbol, fv)
		}
	}
	return nil
}

// Builder assembles selection contexts from bars and chains.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder or an error describing the bad configuration.
func NewBuilder(cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid technical config: %w", err)
	}
	return &Builder{cfg: cfg}, nil
}

// Build assembles the context for one symbol. bars are daily, oldest first;
// chain may be nil, which drops the positioning fields.
func (b *Builder) Build(symbol string, bars []marketdata.Bar, chain *spread.ChainSnapshot) *spread.SelectionContext {
	tc := &spread.SelectionContext{}

	if v, ok := SMA(bars, 20); ok {
		tc.MA20 = &v
	}
	if v, ok := SMA(bars, 50); ok {
		tc.MA50 = &v
	}
	if v, ok := SMA(bars, 200); ok {
		tc.MA200 = &v
	}

	tc.Supports = clusterLevels(swingLows(bars, b.cfg.SwingWindow), b.cfg.TouchTolerance, b.cfg.StrongTouches)
	tc.Resistances = clusterLevels(swingHighs(bars, b.cfg.SwingWindow), b.cfg.TouchTolerance, b.cfg.StrongTouches)

	spot := 0.0
	if chain != nil && chain.Spot > 0 {
		spot = chain.Spot
	} else if len(bars) > 0 {
		spot = bars[len(bars)-1].Close
	}

	if chain != nil {
		if mp, ok := MaxPain(chain); ok {
			tc.MaxPain = &mp
		}
		if spot > 0 {
			tc.PutWalls = topWalls(chain.Puts, belowSpot, spot, b.cfg.WallCount)
			tc.CallWalls = topWalls(chain.Calls, aboveSpot, spot, b.cfg.WallCount)
		}
	}

	tc.FairValue = b.fairValue(symbol, spot, tc.MA50, tc.MA200)
	return tc
}

// SMA returns the simple moving average of the last period closes, ok=false
// when there are not enough bars.
func SMA(bars []marketdata.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period), true
}

// swingLows collects bar lows that undercut every bar within window on both
// sides. Equal lows still qualify so flat double bottoms register twice.
func swingLows(bars []marketdata.Bar, window int) []float64 {
	var lows []float64
	for i := window; i < len(bars)-window; i++ {
		v := bars[i].Low
		isLow := true
		for j := i - window; j <= i+window && isLow; j++ {
			if j != i && bars[j].Low < v {
				isLow = false
			}
		}
		if isLow {
			lows = append(lows, v)
		}
	}
	return lows
}

func swingHighs(bars []marketdata.Bar, window int) []float64 {
	var highs []float64
	for i := window; i < len(bars)-window; i++ {
		v := bars[i].High
		isHigh := true
		for j := i - window; j <= i+window && isHigh; j++ {
			if j != i && bars[j].High > v {
				isHigh = false
			}
		}
		if isHigh {
			highs = append(highs, v)
		}
	}
	return highs
}

// clusterLevels merges nearby swing points into levels, grading strength by
// touch count. Levels come back ascending by price.
func clusterLevels(points []float64, tol float64, strongTouches int) []spread.Level {
	if len(points) == 0 {
		return nil
	}
	sorted := make([]float64, len(points))
	copy(sorted, points)
	sort.Float64s(sorted)

	var levels []spread.Level
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i] <= sorted[start]*(1+tol) {
			continue
		}
		group := sorted[start:i]
		sum := 0.0
		for _, p := range group {
			sum += p
		}
		strength := spread.StrengthModerate
		if len(group) >= strongTouches {
			strength = spread.StrengthStrong
		}
		levels = append(levels, spread.Level{Price: sum / float64(len(group)), Strength: strength})
		start = i
	}
	return levels
}

// MaxPain returns the settlement price minimizing the total intrinsic payout
// across the chain, weighted by open interest. Ties resolve to the lower
// strike; ok is false without strikes or open interest.
func MaxPain(chain *spread.ChainSnapshot) (float64, bool) {
	if chain == nil {
		return 0, false
	}

	strikeSet := make(map[float64]struct{})
	totalOI := int64(0)
	for _, q := range chain.Calls {
		strikeSet[q.Strike] = struct{}{}
		totalOI += q.OpenInterest
	}
	for _, q := range chain.Puts {
		strikeSet[q.Strike] = struct{}{}
		totalOI += q.OpenInterest
	}
	if len(strikeSet) == 0 || totalOI <= 0 {
		return 0, false
	}

	strikes := make([]float64, 0, len(strikeSet))
	for s := range strikeSet {
		strikes = append(strikes, s)
	}
	sort.Float64s(strikes)

	best := 0.0
	bestPayout := math.Inf(1)
	for _, s := range strikes {
		payout := 0.0
		for _, c := range chain.Calls {
			if s > c.Strike {
				payout += float64(c.OpenInterest) * (s - c.Strike)
			}
		}
		for _, p := range chain.Puts {
			if s < p.Strike {
				payout += float64(p.OpenInterest) * (p.Strike - s)
			}
		}
		if payout < bestPayout {
			bestPayout = payout
			best = s
		}
	}
	return best, true
}

type wallSide int

const (
	belowSpot wallSide = iota
	aboveSpot
)

// topWalls returns the heaviest open-interest strikes strictly below or
// above spot, biggest first, capped at n.
func topWalls(quotes []spread.Quote, side wallSide, spot float64, n int) []float64 {
	type wall struct {
		strike float64
		oi     int64
	}
	var walls []wall
	for _, q := range quotes {
		if q.OpenInterest <= 0 {
			continue
		}
		if side == belowSpot && q.Strike >= spot {
			continue
		}
		if side == aboveSpot && q.Strike <= spot {
			continue
		}
		walls = append(walls, wall{q.Strike, q.OpenInterest})
	}
	sort.Slice(walls, func(i, j int) bool {
		if walls[i].oi != walls[j].oi {
			return walls[i].oi > walls[j].oi
		}
		return walls[i].strike < walls[j].strike
	})
	if len(walls) > n {
		walls = walls[:n]
	}
	out := make([]float64, len(walls))
	for i, w := range walls {
		out[i] = w.strike
	}
	return out
}

// fairValue prefers the configured per-symbol override and otherwise blends
// MA50/MA200, leaning bullish when the shorter average leads.
func (b *Builder) fairValue(symbol string, spot float64, ma50, ma200 *float64) *spread.FairValue {
	if override, ok := b.cfg.FairValueOverrides[symbol]; ok && override > 0 {
		bias := spread.BiasNeutral
		switch {
		case spot <= 0:
		case override > spot*1.001:
			bias = spread.BiasBullish
		case override < spot*0.999:
			bias = spread.BiasBearish
		}
		return &spread.FairValue{Price: override, Bias: bias}
	}

	if ma50 == nil || ma200 == nil {
		return nil
	}
	price := 0.6*(*ma50) + 0.4*(*ma200)
	bias := spread.BiasNeutral
	switch {
	case *ma50 > *ma200:
		bias = spread.BiasBullish
	case *ma50 < *ma200:
		bias = spread.BiasBearish
	}
	return &spread.FairValue{Price: price, Bias: bias}
}
