package marketdata

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/spread"
	"github.com/eddiefleurent/schrute_spreads/internal/util"
)

// Simulator fabricates plausible market data without touching the network.
// Output is a pure function of the seed, the symbol, the clock and the call
// arguments, so paper runs and tests reproduce exactly. Each call derives a
// fresh sub-generator, which keeps results independent of call order.
type Simulator struct {
	seed int64
	now  func() time.Time
}

var _ Provider = (*Simulator)(nil)

// NewSimulator returns a simulator on the wall clock.
func NewSimulator(seed int64) *Simulator {
	return NewSimulatorAt(seed, time.Now)
}

// NewSimulatorAt returns a simulator with a pinned clock.
func NewSimulatorAt(seed int64, now func() time.Time) *Simulator {
	if now == nil {
		now = time.Now
	}
	return &Simulator{seed: seed, now: now}
}

// rng derives a deterministic sub-generator for one symbol and concern.
func (s *Simulator) rng(symbol, salt string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte{0})
	h.Write([]byte(salt))
	return rand.New(rand.NewSource(s.seed ^ int64(h.Sum64())))
}

// spot prices the underlying: a per-symbol base level plus a slow seasonal
// drift so consecutive days differ but a given day always reprices the same.
func (s *Simulator) spot(symbol string) float64 {
	rng := s.rng(symbol, "spot")
	base := 40 + rng.Float64()*360

	day := s.now().UTC().Truncate(24*time.Hour).Unix() / 86400
	drift := math.Sin(float64(day%252)/252*2*math.Pi) * base * 0.04
	return util.RoundToTick(base+drift, 0.01)
}

// GetQuote returns a synthetic quote for symbol.
func (s *Simulator) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rng := s.rng(symbol, "quote")
	spot := s.spot(symbol)

	half := math.Max(0.01, spot*0.0002)
	prevRet := (rng.Float64() - 0.5) * 0.03
	return &Quote{
		Symbol:    symbol,
		Last:      spot,
		Bid:       util.RoundToTick(spot-half, 0.01),
		Ask:       util.RoundToTick(spot+half, 0.01),
		PrevClose: util.RoundToTick(spot/(1+prevRet), 0.01),
		Volume:    1_000_000 + rng.Int63n(99_000_000),
	}, nil
}

// GetDailyHistory returns days synthetic daily bars ending at the current
// spot, weekends skipped.
func (s *Simulator) GetDailyHistory(ctx context.Context, symbol string, days int) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, fmt.Errorf("history days must be positive, got %d", days)
	}

	rng := s.rng(symbol, "history")
	spot := s.spot(symbol)

	dates := make([]time.Time, 0, days)
	d := s.now().UTC().Truncate(24 * time.Hour)
	for len(dates) < days {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
		d = d.AddDate(0, 0, -1)
	}
	// Oldest first.
	for i, j := 0, len(dates)-1; i < j; i, j = i+1, j-1 {
		dates[i], dates[j] = dates[j], dates[i]
	}

	rets := make([]float64, days)
	for i := range rets {
		rets[i] = (rng.Float64() - 0.5) * 0.03
	}

	closes := make([]float64, days)
	closes[days-1] = spot
	for i := days - 2; i >= 0; i-- {
		closes[i] = closes[i+1] / (1 + rets[i+1])
	}

	bars := make([]Bar, days)
	for i := range bars {
		c := closes[i]
		o := c / (1 + rets[i])
		hi := math.Max(o, c) * (1 + rng.Float64()*0.008)
		lo := math.Min(o, c) * (1 - rng.Float64()*0.008)
		bars[i] = Bar{
			Date:   dates[i].Format("2006-01-02"),
			Open:   util.RoundToTick(o, 0.01),
			High:   util.RoundToTick(hi, 0.01),
			Low:    util.RoundToTick(lo, 0.01),
			Close:  util.RoundToTick(c, 0.01),
			Volume: 500_000 + rng.Int63n(5_000_000),
		}
	}
	return bars, nil
}

// GetExpirations returns the next ten weekly Friday expirations.
func (s *Simulator) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	const weeks = 10
	d := s.now().UTC().Truncate(24 * time.Hour)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	exps := make([]time.Time, 0, weeks)
	for i := 0; i < weeks; i++ {
		exps = append(exps, d.AddDate(0, 0, 7*i))
	}
	return exps, nil
}

// GetChain fabricates a chain around spot: a strike grid at the listed
// interval, time value decaying away from the money, spreads widening and
// open interest thinning with distance.
func (s *Simulator) GetChain(ctx context.Context, symbol string, expiration time.Time) (*spread.ChainSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spot := s.spot(symbol)
	dte := daysUntil(s.now(), expiration)
	if dte < 0 {
		dte = 0
	}

	rng := s.rng(symbol, "chain:"+expiration.Format("2006-01-02"))
	baseIV := 0.18 + rng.Float64()*0.17

	interval := strikeInterval(spot)
	lo := util.FloorToTick(spot*0.75, interval)
	hi := util.CeilToTick(spot*1.25, interval)
	steps := int(math.Round((hi-lo)/interval)) + 1

	snap := &spread.ChainSnapshot{
		Symbol:     symbol,
		Spot:       spot,
		Expiration: expiration,
		DTE:        dte,
	}

	T := float64(dte) / 365.0
	for i := 0; i < steps; i++ {
		k := lo + float64(i)*interval
		m := (k - spot) / spot
		iv := baseIV * (1 + 0.5*math.Abs(m))

		sigmaT := spot * iv * math.Sqrt(T)
		tv := 0.0
		if sigmaT > 0 {
			z := (k - spot) / sigmaT
			tv = 0.4 * sigmaT * math.Exp(-z*z/2)
		}

		decay := math.Exp(-18 * math.Abs(m))
		rel := 0.01 + 0.10*math.Abs(m)

		callOI := int64(float64(4000) * decay * (0.5 + rng.Float64()))
		putOI := int64(float64(4000) * decay * (0.5 + rng.Float64()))
		callVol := int64(float64(1200) * decay * (0.5 + rng.Float64()))
		putVol := int64(float64(1200) * decay * (0.5 + rng.Float64()))

		callITM := k < spot
		putITM := k > spot

		snap.Calls = append(snap.Calls, simQuote(math.Max(0, spot-k)+tv, k, expiration, rel, iv, callOI, callVol, callITM))
		snap.Puts = append(snap.Puts, simQuote(math.Max(0, k-spot)+tv, k, expiration, rel, iv, putOI, putVol, putITM))
	}
	return snap, nil
}

// GetChainNearestDTE returns the fabricated chain closest to targetDTE days
// out.
func (s *Simulator) GetChainNearestDTE(ctx context.Context, symbol string, targetDTE int) (*spread.ChainSnapshot, error) {
	exps, err := s.GetExpirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	exp, ok := nearestExpiration(exps, s.now(), targetDTE)
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoExpirations)
	}
	return s.GetChain(ctx, symbol, exp)
}

func simQuote(mid, strike float64, expiration time.Time, relSpread, iv float64, oi, vol int64, itm bool) spread.Quote {
	half := math.Max(0.01, mid*relSpread/2)
	bid := util.RoundToTick(mid-half, 0.01)
	if bid < 0 {
		bid = 0
	}
	return spread.Quote{
		Strike:       strike,
		Expiration:   expiration,
		Bid:          bid,
		Ask:          util.RoundToTick(mid+half, 0.01),
		OpenInterest: oi,
		Volume:       vol,
		ImpliedVol:   iv,
		InTheMoney:   &itm,
	}
}

// strikeInterval mirrors typical listed increments for the price level.
func strikeInterval(spot float64) float64 {
	switch {
	case spot < 25:
		return 0.5
	case spot < 100:
		return 1
	case spot < 250:
		return 2.5
	default:
		return 5
	}
}
