package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

const sharesPerContract = 100.0

// PositionStatus is the lifecycle state of a persisted position. A spread is
// opened once and closed once; there are no intermediate states to manage.
type PositionStatus string

const (
	// StatusOpen marks a spread that is on the books.
	StatusOpen PositionStatus = "open"
	// StatusClosed marks a spread that has been exited.
	StatusClosed PositionStatus = "closed"
)

// Valid returns true if the PositionStatus is one of the defined constants.
func (s PositionStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed:
		return true
	default:
		return false
	}
}

// Position represents a persisted bull call debit spread.
//
// CostBasis and ExitValue are per-spread prices (option price units, not
// dollars); dollar amounts are derived with Contracts and the share
// multiplier. DTE is always derived from the expiration, never persisted, so
// a stale record cannot mislead the evaluator.
type Position struct {
	ID          string         `json:"id"`
	Symbol      string         `json:"symbol"`
	LongStrike  float64        `json:"long_strike"`
	ShortStrike float64        `json:"short_strike"`
	Expiration  time.Time      `json:"expiration"`
	Contracts   int            `json:"contracts"`
	CostBasis   float64        `json:"cost_basis"`
	EntrySpot   float64        `json:"entry_spot,omitempty"`
	EntryDate   time.Time      `json:"entry_date"`
	Status      PositionStatus `json:"status"`
	ExitDate    time.Time      `json:"exit_date,omitempty"`
	ExitValue   float64        `json:"exit_value,omitempty"`
	ExitReason  string         `json:"exit_reason,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	// DTE is derived; avoid persisting to prevent staleness
	DTE int `json:"-"`
}

// NewPosition creates an open position with a fresh ID and entry timestamp.
func NewPosition(symbol string, longStrike, shortStrike float64, expiration time.Time, costBasis float64, contracts int) *Position {
	return &Position{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		LongStrike:  longStrike,
		ShortStrike: shortStrike,
		Expiration:  expiration,
		Contracts:   contracts,
		CostBasis:   costBasis,
		EntryDate:   time.Now().UTC(),
		Status:      StatusOpen,
	}
}

// Width returns the strike distance of the spread.
func (p *Position) Width() float64 {
	return p.ShortStrike - p.LongStrike
}

// MaxProfit returns the best-case per-spread profit at expiration.
func (p *Position) MaxProfit() float64 {
	return p.Width() - p.CostBasis
}

// CostDollars returns the total dollars paid to open the position.
func (p *Position) CostDollars() float64 {
	return p.CostBasis * float64(p.Contracts) * sharesPerContract
}

// CalculateDTE calculates the days remaining to expiration as of now,
// floored at zero. Callers pass their clock so tests stay deterministic.
func (p *Position) CalculateDTE(now time.Time) int {
	today := now.UTC().Truncate(24 * time.Hour)
	exp := p.Expiration.UTC().Truncate(24 * time.Hour)
	days := int(exp.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// NetProfit returns the realized dollar profit of a closed position, or zero
// while the position is still open.
func (p *Position) NetProfit() float64 {
	if p.Status != StatusClosed {
		return 0
	}
	return (p.ExitValue - p.CostBasis) * float64(p.Contracts) * sharesPerContract
}

// ProfitPercent returns realized P/L as a percentage of the capital at risk.
func (p *Position) ProfitPercent() float64 {
	if p.Status != StatusClosed || p.CostBasis == 0 {
		return 0
	}
	return (p.ExitValue - p.CostBasis) / p.CostBasis * 100
}

// ToSpreadInput converts the persisted record into the evaluator's input.
// currentValue is the live per-spread quote when the caller has one; nil lets
// the evaluator fall back to its own estimate.
func (p *Position) ToSpreadInput(now time.Time, currentValue *float64) spread.Position {
	return spread.Position{
		Ticker:       p.Symbol,
		LongStrike:   p.LongStrike,
		ShortStrike:  p.ShortStrike,
		CostBasis:    p.CostBasis,
		CurrentValue: currentValue,
		DTE:          p.CalculateDTE(now),
	}
}

// CloseSummary reports the realized outcome of a close.
type CloseSummary struct {
	Profit      float64 `json:"profit"`
	ProfitPct   float64 `json:"profit_pct"`
	HoldingDays int     `json:"holding_days"`
}

// Close transitions an open position to closed at the given exit value per
// spread and records why.
func (p *Position) Close(exitValue float64, reason string, at time.Time) (CloseSummary, error) {
	if p.Status != StatusOpen {
		return CloseSummary{}, fmt.Errorf("position %s is %s, only open positions can be closed", p.ID, p.Status)
	}
	if exitValue < 0 {
		return CloseSummary{}, fmt.Errorf("position %s: exit value %.2f cannot be negative", p.ID, exitValue)
	}
	if strings.TrimSpace(reason) == "" {
		return CloseSummary{}, fmt.Errorf("position %s: a close needs a reason", p.ID)
	}
	if !at.After(p.EntryDate) {
		return CloseSummary{}, fmt.Errorf("position %s: exit time %v is not after entry %v", p.ID, at, p.EntryDate)
	}

	p.Status = StatusClosed
	p.ExitValue = exitValue
	p.ExitReason = reason
	p.ExitDate = at.UTC()

	return CloseSummary{
		Profit:      p.NetProfit(),
		ProfitPct:   p.ProfitPercent(),
		HoldingDays: int(p.ExitDate.Sub(p.EntryDate).Hours() / 24),
	}, nil
}

// Validate ensures the position record is internally consistent.
func (p *Position) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("position has no ID")
	}
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("position %s has no symbol", p.ID)
	}
	if p.LongStrike <= 0 {
		return fmt.Errorf("position %s: long strike %.2f must be positive", p.ID, p.LongStrike)
	}
	if p.ShortStrike <= p.LongStrike {
		return fmt.Errorf("position %s: short strike %.2f must be above long strike %.2f",
			p.ID, p.ShortStrike, p.LongStrike)
	}
	if p.Expiration.IsZero() {
		return fmt.Errorf("position %s has no expiration", p.ID)
	}
	if p.Contracts <= 0 {
		return fmt.Errorf("position %s: contracts must be > 0 (current: %d)", p.ID, p.Contracts)
	}
	if p.CostBasis <= 0 || p.CostBasis >= p.Width() {
		return fmt.Errorf("position %s: cost basis %.2f must be inside (0, %.2f), the spread width",
			p.ID, p.CostBasis, p.Width())
	}
	if !p.Status.Valid() {
		return fmt.Errorf("position %s has unknown status %q", p.ID, p.Status)
	}

	switch p.Status {
	case StatusOpen:
		if p.EntryDate.IsZero() {
			return fmt.Errorf("position %s in status %s: EntryDate must be set", p.ID, p.Status)
		}
		if !p.ExitDate.IsZero() {
			return fmt.Errorf("position %s in status %s: ExitDate must be zero (current: %v)",
				p.ID, p.Status, p.ExitDate)
		}
		if strings.TrimSpace(p.ExitReason) != "" {
			return fmt.Errorf("position %s in status %s: ExitReason must be empty (current: %s)",
				p.ID, p.Status, p.ExitReason)
		}
		if p.ExitValue != 0 {
			return fmt.Errorf("position %s in status %s: ExitValue must be zero (current: %.2f)",
				p.ID, p.Status, p.ExitValue)
		}
	case StatusClosed:
		if p.EntryDate.IsZero() {
			return fmt.Errorf("position %s in status %s: EntryDate must be set", p.ID, p.Status)
		}
		if p.ExitDate.IsZero() {
			return fmt.Errorf("position %s in status %s: ExitDate must be set", p.ID, p.Status)
		}
		if !p.EntryDate.Before(p.ExitDate) {
			return fmt.Errorf("position %s in status %s: EntryDate (%v) must be before ExitDate (%v)",
				p.ID, p.Status, p.EntryDate, p.ExitDate)
		}
		if strings.TrimSpace(p.ExitReason) == "" {
			return fmt.Errorf("position %s in status %s: ExitReason must be set", p.ID, p.Status)
		}
		if p.ExitValue < 0 {
			return fmt.Errorf("position %s in status %s: ExitValue cannot be negative (current: %.2f)",
				p.ID, p.Status, p.ExitValue)
		}
	}

	return nil
}
