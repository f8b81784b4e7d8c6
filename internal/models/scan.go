package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

// ScanRecord is one symbol's outcome from one scan pass, persisted so the
// dashboard and the scan log can show what the engine saw and why it chose
// what it chose.
type ScanRecord struct {
	ID        string                 `json:"id"`
	Symbol    string                 `json:"symbol"`
	Timestamp time.Time              `json:"timestamp"`
	Spot      float64                `json:"spot"`
	Result    spread.SelectionResult `json:"result"`
}

// NewScanRecord stamps a selection result with an ID and the scan time.
func NewScanRecord(symbol string, spot float64, result spread.SelectionResult, at time.Time) *ScanRecord {
	return &ScanRecord{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Timestamp: at.UTC(),
		Spot:      spot,
		Result:    result,
	}
}

// HasRecommendation reports whether the scan produced a primary pick.
func (r *ScanRecord) HasRecommendation() bool {
	return r.Result.Primary != nil
}

// TopScore returns the primary's total score, or zero when the scan came up
// empty.
func (r *ScanRecord) TopScore() float64 {
	if r.Result.Primary == nil {
		return 0
	}
	return r.Result.Primary.TotalScore
}
