// Package spread implements the vertical-spread selection and position-risk
// engine: candidate generation and pricing for deep in-the-money bull call
// debit spreads, composite scoring, primary/alternative selection under an
// optional budget, and hold/close/roll assessment of open positions.
//
// Every entry point is a pure, synchronous function over already-materialized
// inputs. The engine never performs I/O and never retries; missing or invalid
// upstream data degrades to an empty result rather than an error.
package spread

import (
	"time"
)

// Quote is an immutable snapshot of a single option contract's market data.
type Quote struct {
	Strike       float64   `json:"strike"`
	Expiration   time.Time `json:"expiration"`
	Bid          float64   `json:"bid"`
	Ask          float64   `json:"ask"`
	OpenInterest int64     `json:"open_interest"`
	Volume       int64     `json:"volume"`
	// ImpliedVol is a fraction (0.30 = 30%). Zero or negative means the feed
	// did not supply a usable value.
	ImpliedVol float64 `json:"implied_vol"`
	// InTheMoney is the feed's own moneyness flag when present; nil when the
	// feed omits it and moneyness must be derived from strike vs spot.
	InTheMoney *bool `json:"in_the_money,omitempty"`
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// HasMarket reports whether both sides of the quote carry a positive price.
func (q Quote) HasMarket() bool {
	return q.Bid > 0 && q.Ask > 0
}

// RelativeSpread returns (ask-bid)/mid, or ok=false when the quote has no
// usable two-sided market.
func (q Quote) RelativeSpread() (float64, bool) {
	if !q.HasMarket() || q.Ask < q.Bid {
		return 0, false
	}
	mid := q.Mid()
	if mid <= 0 {
		return 0, false
	}
	return (q.Ask - q.Bid) / mid, true
}

// ITMCall reports whether the quote is in the money as a call against spot,
// preferring the feed's own flag when it was supplied.
func (q Quote) ITMCall(spot float64) bool {
	if q.InTheMoney != nil {
		return *q.InTheMoney
	}
	return q.Strike < spot
}

// ChainSnapshot is one expiration's option chain for a single underlying,
// as handed over by the market data provider.
type ChainSnapshot struct {
	Symbol     string    `json:"symbol"`
	Spot       float64   `json:"spot"`
	Expiration time.Time `json:"expiration"`
	// DTE is days to expiration as computed by the provider. When zero and
	// Expiration is set, the engine derives it from its own clock.
	DTE   int     `json:"dte"`
	Calls []Quote `json:"calls"`
	Puts  []Quote `json:"puts"`
}

// Strength qualifies how reliable a support or resistance level is.
type Strength string

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
)

// Bias is the direction attached to a fair value estimate.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

// Level is a price level with a qualitative strength.
type Level struct {
	Price    float64  `json:"price"`
	Strength Strength `json:"strength"`
}

// FairValue is a modeled fair price for the underlying with a directional bias.
type FairValue struct {
	Price float64 `json:"price"`
	Bias  Bias    `json:"bias"`
}

// SelectionContext carries optional technical and positioning data used to
// bias the technical score. Every field is independently optional; a nil
// context, or any subset of nil fields, never blocks candidate generation.
type SelectionContext struct {
	Supports    []Level    `json:"supports,omitempty"`
	Resistances []Level    `json:"resistances,omitempty"`
	MA20        *float64   `json:"ma20,omitempty"`
	MA50        *float64   `json:"ma50,omitempty"`
	MA200       *float64   `json:"ma200,omitempty"`
	FairValue   *FairValue `json:"fair_value,omitempty"`
	MaxPain     *float64   `json:"max_pain,omitempty"`
	PutWalls    []float64  `json:"put_walls,omitempty"`
	CallWalls   []float64  `json:"call_walls,omitempty"`
}

// Candidate is a fully priced and scored bull call debit spread. Candidates
// are created fresh on every selection pass and never mutated after scoring.
type Candidate struct {
	LongStrike  float64   `json:"long_strike"`
	ShortStrike float64   `json:"short_strike"`
	Width       float64   `json:"width"`
	Expiration  time.Time `json:"expiration"`
	DTE         int       `json:"dte"`

	Debit           float64 `json:"debit"`
	MaxProfit       float64 `json:"max_profit"`
	Breakeven       float64 `json:"breakeven"`
	CushionPct      float64 `json:"cushion_pct"`
	ReturnOnRiskPct float64 `json:"return_on_risk_pct"`

	ProbabilityOfProfit float64 `json:"probability_of_profit"`

	CushionScore   float64 `json:"cushion_score"`
	LiquidityScore float64 `json:"liquidity_score"`
	BidAskScore    float64 `json:"bid_ask_score"`
	TechnicalScore float64 `json:"technical_score"`
	TotalScore     float64 `json:"total_score"`
}

// Cost returns the dollar cost of one spread (debit x shares per contract).
func (c Candidate) Cost() float64 {
	return c.Debit * SharesPerContract
}

// SameSpread reports whether two candidates describe the same strike pair.
func (c Candidate) SameSpread(o Candidate) bool {
	return c.LongStrike == o.LongStrike && c.ShortStrike == o.ShortStrike
}

// Recommendation is the consumer-facing view of a selected spread.
type Recommendation struct {
	LongStrike          float64   `json:"long_strike"`
	ShortStrike         float64   `json:"short_strike"`
	Expiration          time.Time `json:"expiration"`
	DTE                 int       `json:"dte"`
	EstimatedDebit      float64   `json:"estimated_debit"`
	MaxProfit           float64   `json:"max_profit"`
	Breakeven           float64   `json:"breakeven"`
	CushionPct          float64   `json:"cushion_pct"`
	ReturnOnRiskPct     float64   `json:"return_on_risk_pct"`
	SpreadWidth         float64   `json:"spread_width"`
	ProbabilityOfProfit float64   `json:"probability_of_profit"`
	TotalScore          float64   `json:"total_score"`
}

// SelectionResult is the outcome of one selection pass. Primary is nil when
// no viable candidate exists (or when a strict budget excludes them all);
// Reason carries a human-readable explanation whenever selection deviated
// from the plain highest-score choice.
type SelectionResult struct {
	Primary      *Recommendation  `json:"primary"`
	Alternatives []Recommendation `json:"alternatives"`
	Reason       string           `json:"reason,omitempty"`
}

// Position is an open bull call debit spread handed to the risk evaluator.
// CurrentValue is the observed live value of the spread when the caller has
// one; when nil the evaluator falls back to its own estimate.
type Position struct {
	Ticker       string
	LongStrike   float64
	ShortStrike  float64
	CostBasis    float64
	CurrentValue *float64
	DTE          int
}

// Width returns the strike distance of the position's spread.
func (p Position) Width() float64 {
	return p.ShortStrike - p.LongStrike
}

// ThetaBucket buckets how hard time decay is working against the position.
type ThetaBucket string

const (
	ThetaHigh   ThetaBucket = "HIGH"
	ThetaMedium ThetaBucket = "MEDIUM"
	ThetaLow    ThetaBucket = "LOW"
)

// Action is the evaluator's verdict for an open position.
type Action string

const (
	ActionHold  Action = "HOLD"
	ActionClose Action = "CLOSE"
	ActionRoll  Action = "ROLL"
)

// Assessment is the full output of a position evaluation: the position's
// derived numbers plus a recommendation, a confidence score and the ordered
// reasoning that produced them.
type Assessment struct {
	MaxValue           float64     `json:"max_value"`
	MaxProfit          float64     `json:"max_profit"`
	CurrentValue       float64     `json:"current_value"`
	CurrentProfit      float64     `json:"current_profit"`
	ProfitCapturedPct  float64     `json:"profit_captured_pct"`
	RemainingProfit    float64     `json:"remaining_profit"`
	CushionPct         float64     `json:"cushion_pct"`
	Breakeven          float64     `json:"breakeven"`
	TimeValueRemaining float64     `json:"time_value_remaining"`
	ThetaBucket        ThetaBucket `json:"theta_bucket"`
	Recommendation     Action      `json:"recommendation"`
	Confidence         int         `json:"confidence"`
	Reasoning          []string    `json:"reasoning"`
}

// SharesPerContract is the share multiplier of a standard US equity option.
const SharesPerContract = 100.0
