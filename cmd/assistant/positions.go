package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
)

// runPositions prints the open position book and the closed-trade record.
func (a *App) runPositions(ctx context.Context) error {
	positions, err := a.store.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}
	stats, err := a.store.GetStatistics(ctx)
	if err != nil {
		return fmt.Errorf("loading statistics: %w", err)
	}

	printPositionsTable(a.out, positions, time.Now())
	fmt.Fprintln(a.out)
	printStatistics(a.out, stats)
	return nil
}

// runEvaluate runs the risk rules on every open position against live quotes
// and prints the verdicts with their reasoning.
func (a *App) runEvaluate(ctx context.Context) error {
	positions, err := a.store.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}
	if len(positions) == 0 {
		fmt.Fprintln(a.out, "No open positions to evaluate.")
		return nil
	}

	now := time.Now()
	type verdict struct {
		pos       *models.Position
		reasoning []string
	}
	var verdicts []verdict

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSPREAD\tDTE\tSPOT\tCUSH%\tCAPTURED%\tTHETA\tACTION\tCONF%")
	for i := range positions {
		pos := &positions[i]
		dte := pos.CalculateDTE(now)

		quote, err := a.provider.GetQuote(ctx, pos.Symbol)
		if err != nil {
			a.logger.Printf("%s: quote failed: %v", pos.Symbol, err)
			fmt.Fprintf(tw, "%s\t%g/%g\t%d\t-\t-\t-\t-\tquote failed\t-\n",
				pos.Symbol, pos.LongStrike, pos.ShortStrike, dte)
			continue
		}

		assessment := a.engine.EvaluatePosition(pos.ToSpreadInput(now, nil), quote.Last)
		fmt.Fprintf(tw, "%s\t%g/%g\t%d\t%.2f\t%.1f\t%.0f\t%s\t%s\t%d\n",
			pos.Symbol, pos.LongStrike, pos.ShortStrike, dte, quote.Last,
			assessment.CushionPct, assessment.ProfitCapturedPct,
			assessment.ThetaBucket, assessment.Recommendation, assessment.Confidence)
		verdicts = append(verdicts, verdict{pos: pos, reasoning: assessment.Reasoning})
	}
	_ = tw.Flush()

	for _, v := range verdicts {
		if len(v.reasoning) == 0 {
			continue
		}
		fmt.Fprintf(a.out, "\n%s %g/%g:\n", v.pos.Symbol, v.pos.LongStrike, v.pos.ShortStrike)
		for _, line := range v.reasoning {
			fmt.Fprintf(a.out, "  - %s\n", line)
		}
	}
	return nil
}

func printPositionsTable(w io.Writer, positions []models.Position, now time.Time) {
	if len(positions) == 0 {
		fmt.Fprintln(w, "No open positions.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tSPREAD\tEXP\tDTE\tQTY\tCOST\tMAX PROFIT\tENTERED")
	for i := range positions {
		p := &positions[i]
		maxProfitDollars := p.MaxProfit() * float64(p.Contracts) * spread.SharesPerContract
		fmt.Fprintf(tw, "%s\t%s\t%g/%g\t%s\t%d\t%d\t$%.2f\t$%.2f\t%s\n",
			shortID(p.ID), p.Symbol, p.LongStrike, p.ShortStrike,
			p.Expiration.Format("2006-01-02"), p.CalculateDTE(now),
			p.Contracts, p.CostDollars(), maxProfitDollars,
			p.EntryDate.Format("2006-01-02"))
	}
	_ = tw.Flush()
}

func printStatistics(w io.Writer, stats *storage.Statistics) {
	fmt.Fprintf(w, "Closed trades: %d (%d won, %d lost)\n",
		stats.TotalTrades, stats.WinningTrades, stats.LosingTrades)
	if stats.TotalTrades > 0 {
		fmt.Fprintf(w, "Win rate: %.1f%%  Total P&L: $%.2f  Average: $%.2f\n",
			stats.WinRate, stats.TotalPnL, stats.AveragePnL)
	}
}
