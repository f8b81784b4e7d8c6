package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

const (
	// defaultTargetDTE picks the expiration nearest the middle of the
	// 30-60 day window the selection math assumes.
	defaultTargetDTE = 45

	// maxConcurrentScans bounds the symbol fan-out so the provider is not
	// hammered with parallel chain requests.
	maxConcurrentScans = 4
)

// scanOutcome is one symbol's scan: either a selection result or an error.
type scanOutcome struct {
	Symbol string
	Spot   float64
	Result spread.SelectionResult
	Err    error
}

// runScan scans every configured symbol once, prints the ranked table,
// persists the results and fires notifications.
func (a *App) runScan(ctx context.Context) error {
	a.logger.Printf("Scanning %d symbol(s)...", len(a.config.Symbols))
	outcomes := a.scanSymbols(ctx, a.config.Symbols)

	printScanTable(a.out, outcomes)

	failures := 0
	for _, out := range outcomes {
		if out.Err != nil {
			failures++
			continue
		}
		rec := models.NewScanRecord(out.Symbol, out.Spot, out.Result, time.Now().UTC())
		if err := a.store.AddScanRecord(ctx, rec); err != nil {
			a.logger.Printf("%s: failed to persist scan: %v", out.Symbol, err)
		}
		_ = a.notifier.ScanAlert(ctx, out.Symbol, out.Spot, out.Result)
	}

	if failures == len(outcomes) && len(outcomes) > 0 {
		return fmt.Errorf("all %d scans failed", failures)
	}
	return nil
}

// scanSymbols fans the scan out over the symbols with bounded concurrency.
// Per-symbol failures land in the outcome, not in the group error, so one
// bad chain never aborts the rest.
func (a *App) scanSymbols(ctx context.Context, symbols []string) []scanOutcome {
	outcomes := make([]scanOutcome, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentScans)
	for i, symbol := range symbols {
		g.Go(func() error {
			outcomes[i] = a.scanSymbol(gctx, symbol)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (a *App) scanSymbol(ctx context.Context, symbol string) scanOutcome {
	out := scanOutcome{Symbol: symbol}

	chain, err := a.provider.GetChainNearestDTE(ctx, symbol, defaultTargetDTE)
	if err != nil {
		out.Err = fmt.Errorf("loading chain: %w", err)
		return out
	}
	out.Spot = chain.Spot

	bars, err := a.provider.GetDailyHistory(ctx, symbol, a.config.Technical.HistoryDays)
	if err != nil {
		a.logger.Printf("%s: price history unavailable, scoring without trend context: %v", symbol, err)
		bars = nil
	}
	tc := a.builder.Build(symbol, bars, chain)

	out.Result = a.engine.SelectSpreads(*chain, tc)
	return out
}

// printScanTable renders outcomes ranked by primary score. Symbols without
// a pick sort below scored ones, failed scans last.
func printScanTable(w io.Writer, outcomes []scanOutcome) {
	ranked := make([]scanOutcome, len(outcomes))
	copy(ranked, outcomes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return rankScore(ranked[i]) > rankScore(ranked[j])
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSPOT\tSPREAD\tEXP\tDTE\tDEBIT\tMAX\tROI%\tCUSH%\tPOP%\tSCORE\tNOTE")
	for _, out := range ranked {
		switch {
		case out.Err != nil:
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\t-\t-\t-\t-\terror: %v\n", out.Symbol, out.Err)
		case out.Result.Primary == nil:
			reason := out.Result.Reason
			if reason == "" {
				reason = "no viable spread"
			}
			fmt.Fprintf(tw, "%s\t%.2f\t-\t-\t-\t-\t-\t-\t-\t-\t-\t%s\n", out.Symbol, out.Spot, reason)
		default:
			p := out.Result.Primary
			fmt.Fprintf(tw, "%s\t%.2f\t%g/%g\t%s\t%d\t%.2f\t%.2f\t%.1f\t%.1f\t%.0f\t%.1f\t%s\n",
				out.Symbol, out.Spot, p.LongStrike, p.ShortStrike,
				p.Expiration.Format("2006-01-02"), p.DTE,
				p.EstimatedDebit, p.MaxProfit, p.ReturnOnRiskPct,
				p.CushionPct, p.ProbabilityOfProfit, p.TotalScore,
				out.Result.Reason)
		}
	}
	_ = tw.Flush()
}

func rankScore(out scanOutcome) float64 {
	switch {
	case out.Err != nil:
		return -2
	case out.Result.Primary == nil:
		return -1
	default:
		return out.Result.Primary.TotalScore
	}
}
