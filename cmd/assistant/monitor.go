package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/schrute_spreads/internal/dashboard"
	"github.com/eddiefleurent/schrute_spreads/internal/models"
)

const dashboardShutdownTimeout = 5 * time.Second

// runMonitor keeps scanning on the configured interval and re-assessing open
// positions, with the dashboard and websocket feed alongside when enabled.
// It returns when ctx is cancelled.
func (a *App) runMonitor(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	var hub *dashboard.Hub
	if a.config.Dashboard.Enabled {
		dashLogger := newDashboardLogger(a.config.Environment.LogLevel)
		hub = dashboard.NewHub(dashLogger)
		srv := dashboard.NewServer(dashboard.Config{
			Port:      a.config.Dashboard.Port,
			AuthToken: a.config.Dashboard.AuthToken,
		}, a.store, a.provider, a.engine, hub, dashLogger)

		g.Go(func() error { return hub.Run(gctx) })
		g.Go(func() error {
			if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), dashboardShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error { return a.monitorLoop(gctx, hub) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) monitorLoop(ctx context.Context, hub *dashboard.Hub) error {
	interval := a.config.GetScanInterval()
	a.logger.Printf("Monitoring %d symbol(s) every %s", len(a.config.Symbols), interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.monitorCycle(ctx, hub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.monitorCycle(ctx, hub)
		}
	}
}

func (a *App) monitorCycle(ctx context.Context, hub *dashboard.Hub) {
	now := time.Now()
	if !a.config.IsWithinMarketHours(now) && !a.config.Schedule.AfterHoursScan {
		a.logger.Printf("Outside market hours (%s-%s), skipping cycle",
			a.config.Schedule.MarketOpen, a.config.Schedule.MarketClose)
		return
	}

	outcomes := a.scanSymbols(ctx, a.config.Symbols)
	for _, out := range outcomes {
		if out.Err != nil {
			a.logger.Printf("%s: scan failed: %v", out.Symbol, out.Err)
			continue
		}
		rec := models.NewScanRecord(out.Symbol, out.Spot, out.Result, time.Now().UTC())
		if err := a.store.AddScanRecord(ctx, rec); err != nil {
			a.logger.Printf("%s: failed to persist scan: %v", out.Symbol, err)
		}
		if hub != nil {
			hub.Broadcast("scan", rec)
		}
		_ = a.notifier.ScanAlert(ctx, out.Symbol, out.Spot, out.Result)
	}

	a.reassessPositions(ctx, hub)
}

// reassessPositions re-runs the risk rules on every open position against a
// fresh quote. Alerts fire only when the recommended action changes.
func (a *App) reassessPositions(ctx context.Context, hub *dashboard.Hub) {
	positions, err := a.store.GetOpenPositions(ctx)
	if err != nil {
		a.logger.Printf("Failed to load open positions: %v", err)
		return
	}

	now := time.Now()
	for i := range positions {
		pos := &positions[i]

		quote, err := a.provider.GetQuote(ctx, pos.Symbol)
		if err != nil {
			a.logger.Printf("%s: quote failed, skipping assessment: %v", pos.Symbol, err)
			continue
		}

		assessment := a.engine.EvaluatePosition(pos.ToSpreadInput(now, nil), quote.Last)
		a.logger.Printf("%s %g/%g: %s (%.0f%% captured, confidence %d%%)",
			pos.Symbol, pos.LongStrike, pos.ShortStrike, assessment.Recommendation,
			assessment.ProfitCapturedPct, assessment.Confidence)

		if hub != nil {
			hub.Broadcast("assessment", map[string]any{
				"position_id": pos.ID,
				"symbol":      pos.Symbol,
				"spot":        quote.Last,
				"assessment":  assessment,
			})
		}

		pos.DTE = pos.CalculateDTE(now)
		_ = a.notifier.PositionAlert(ctx, *pos, assessment)
	}
}

func newDashboardLogger(level string) *logrus.Logger {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}
