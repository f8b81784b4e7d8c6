// Package notify pushes scan picks and position alerts to a chat webhook.
// An unconfigured Notifier (nil, or built without a sender) swallows every
// call, so call sites never need to guard on whether alerting is on.
package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

// Sender is a single delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs (e.g. "discord").
	Name() string
}

// Notifier decides which events are worth an alert. Scan picks must clear a
// minimum score; position alerts fire only when the recommended action
// changes since the last alert for that position.
type Notifier struct {
	sender   Sender
	minScore float64
	logger   *log.Logger

	mu   sync.Mutex
	last map[string]spread.Action
}

// New builds a Notifier delivering through sender. A nil sender disables
// delivery entirely.
func New(sender Sender, minScore float64, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Notifier{
		sender:   sender,
		minScore: minScore,
		logger:   logger,
		last:     make(map[string]spread.Action),
	}
}

// Enabled reports whether alerts can actually be delivered.
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil
}

// ScanAlert reports a scan's primary pick. Results without a pick, or whose
// pick scores under the configured minimum, are dropped silently.
func (n *Notifier) ScanAlert(ctx context.Context, symbol string, spot float64, result spread.SelectionResult) error {
	if !n.Enabled() {
		return nil
	}
	if result.Primary == nil {
		return nil
	}
	if result.Primary.TotalScore < n.minScore {
		return nil
	}

	title := fmt.Sprintf("%s spread pick (spot %.2f)", symbol, spot)
	message := FormatRecommendation(*result.Primary)
	if len(result.Alternatives) > 0 {
		message += fmt.Sprintf("\n%d alternative(s) scored lower.", len(result.Alternatives))
	}
	return n.deliver(ctx, title, message)
}

// PositionAlert reports a position's assessment when the recommended action
// differs from the last delivered alert for that position. The first
// assessment for a position always fires. Failed deliveries stay armed so
// the next evaluation retries.
func (n *Notifier) PositionAlert(ctx context.Context, pos models.Position, a spread.Assessment) error {
	if !n.Enabled() {
		return nil
	}

	n.mu.Lock()
	prev, seen := n.last[pos.ID]
	n.mu.Unlock()
	if seen && prev == a.Recommendation {
		return nil
	}

	title := fmt.Sprintf("%s %g/%g: %s", pos.Symbol, pos.LongStrike, pos.ShortStrike, a.Recommendation)
	message := fmt.Sprintf("Captured %.0f%% of max profit | cushion %.1f%% | %d DTE | confidence %d%%",
		a.ProfitCapturedPct, a.CushionPct, pos.DTE, a.Confidence)
	if len(a.Reasoning) > 0 {
		message += "\n" + a.Reasoning[0]
	}
	if err := n.deliver(ctx, title, message); err != nil {
		return err
	}

	n.mu.Lock()
	n.last[pos.ID] = a.Recommendation
	n.mu.Unlock()
	return nil
}

func (n *Notifier) deliver(ctx context.Context, title, message string) error {
	if err := n.sender.Send(ctx, title, message); err != nil {
		n.logger.Printf("notify: %s send failed: %v", n.sender.Name(), err)
		return fmt.Errorf("notify: %s: %w", n.sender.Name(), err)
	}
	return nil
}

// FormatRecommendation renders a pick compactly for chat: strikes, debit,
// return on risk, probability of profit and the composite score.
func FormatRecommendation(rec spread.Recommendation) string {
	return fmt.Sprintf("%g/%g exp %s, %.2f debit (max profit %.2f) | ROI %.1f%% | PoP %.0f%% | score %.1f",
		rec.LongStrike, rec.ShortStrike, rec.Expiration.Format("2006-01-02"),
		rec.EstimatedDebit, rec.MaxProfit,
		rec.ReturnOnRiskPct, rec.ProbabilityOfProfit, rec.TotalScore)
}
