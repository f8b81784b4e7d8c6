// Package marketdata feeds the selection engine with underlying quotes,
// daily history and option chains. TradierClient talks to the real API,
// Simulator fabricates deterministic data for paper mode and tests, and
// BreakerProvider adds a circuit breaker around either.
package marketdata

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

// StrikeMatchEpsilon is the default tolerance when matching strikes from
// float64 chain data.
const StrikeMatchEpsilon = 1e-3

// ErrNoExpirations indicates the provider has no upcoming expirations for a
// symbol.
var ErrNoExpirations = errors.New("no upcoming expirations")

// Quote is the latest market snapshot for an underlying.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	PrevClose float64 `json:"prev_close"`
	Volume    int64   `json:"volume"`
}

// Bar is one daily OHLCV bar. Date is formatted 2006-01-02.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Provider supplies everything the engine needs to scan a symbol. All calls
// honor context cancellation.
type Provider interface {
	// GetQuote returns the latest underlying quote.
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	// GetDailyHistory returns up to days trailing daily bars, oldest first.
	GetDailyHistory(ctx context.Context, symbol string, days int) ([]Bar, error)
	// GetExpirations returns upcoming option expirations, ascending.
	GetExpirations(ctx context.Context, symbol string) ([]time.Time, error)
	// GetChain returns the option chain for one expiration.
	GetChain(ctx context.Context, symbol string, expiration time.Time) (*spread.ChainSnapshot, error)
	// GetChainNearestDTE returns the chain whose expiration lands closest to
	// targetDTE days out, so callers never juggle raw expiration lists.
	GetChainNearestDTE(ctx context.Context, symbol string, targetDTE int) (*spread.ChainSnapshot, error)
}

// CallByStrike returns the call quote whose strike is within tol of strike.
func CallByStrike(chain *spread.ChainSnapshot, strike, tol float64) (spread.Quote, bool) {
	if chain == nil {
		return spread.Quote{}, false
	}
	for _, q := range chain.Calls {
		if math.Abs(q.Strike-strike) <= tol {
			return q, true
		}
	}
	return spread.Quote{}, false
}

// DaysBetween returns the absolute whole-day distance between two instants,
// ignoring time of day.
func DaysBetween(a, b time.Time) int {
	ad := a.UTC().Truncate(24 * time.Hour)
	bd := b.UTC().Truncate(24 * time.Hour)
	d := int(bd.Sub(ad).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// daysUntil is the signed day count from now to exp; negative means exp has
// passed.
func daysUntil(now, exp time.Time) int {
	nd := now.UTC().Truncate(24 * time.Hour)
	ed := exp.UTC().Truncate(24 * time.Hour)
	return int(ed.Sub(nd).Hours() / 24)
}

// nearestExpiration picks the upcoming expiration whose DTE is closest to
// target, preferring the earlier date on ties. ok is false when every
// expiration has already passed.
func nearestExpiration(expirations []time.Time, now time.Time, targetDTE int) (time.Time, bool) {
	var best time.Time
	bestDiff := -1
	for _, exp := range expirations {
		dte := daysUntil(now, exp)
		if dte < 0 {
			continue
		}
		diff := dte - targetDTE
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff || (diff == bestDiff && exp.Before(best)) {
			best = exp
			bestDiff = diff
		}
	}
	return best, bestDiff >= 0
}
