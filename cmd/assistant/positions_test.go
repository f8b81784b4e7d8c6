package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
)

func TestPrintPositionsTable(t *testing.T) {
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)
	pos := models.NewPosition("SPY", 180, 185, now.Add(30*24*time.Hour), 4.00, 2)
	pos.EntryDate = now.Add(-48 * time.Hour)

	var buf bytes.Buffer
	printPositionsTable(&buf, []models.Position{*pos}, now)
	out := buf.String()

	assert.Contains(t, out, shortID(pos.ID))
	assert.Contains(t, out, "SPY")
	assert.Contains(t, out, "180/185")
	assert.Contains(t, out, "$800.00", "cost in dollars")
	assert.Contains(t, out, "$200.00", "max profit in dollars")
	assert.Contains(t, out, "30", "days to expiration")
}

func TestPrintPositionsTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	printPositionsTable(&buf, nil, time.Now())
	assert.Contains(t, buf.String(), "No open positions.")
}

func TestPrintStatistics(t *testing.T) {
	var buf bytes.Buffer
	printStatistics(&buf, &storage.Statistics{
		TotalTrades:   4,
		WinningTrades: 3,
		LosingTrades:  1,
		WinRate:       75,
		TotalPnL:      260,
		AveragePnL:    65,
	})
	out := buf.String()

	assert.Contains(t, out, "Closed trades: 4 (3 won, 1 lost)")
	assert.Contains(t, out, "Win rate: 75.0%")
	assert.Contains(t, out, "$260.00")
}

func TestPrintStatistics_NoClosedTrades(t *testing.T) {
	var buf bytes.Buffer
	printStatistics(&buf, &storage.Statistics{OpenTrades: 2})
	out := buf.String()

	assert.Contains(t, out, "Closed trades: 0")
	assert.NotContains(t, out, "Win rate", "no rate line without closed trades")
}

func TestRunPositions_Table(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	var buf bytes.Buffer
	app.out = &buf

	pos := models.NewPosition("SPY", 180, 185, time.Now().UTC().Add(30*24*time.Hour), 4.00, 1)
	require.NoError(t, app.store.AddPosition(context.Background(), pos))

	require.NoError(t, app.runPositions(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "SPY")
	assert.Contains(t, out, "180/185")
	assert.Contains(t, out, "Closed trades: 0")
}

func TestRunEvaluate_NoPositions(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	var buf bytes.Buffer
	app.out = &buf

	require.NoError(t, app.runEvaluate(context.Background()))
	assert.Contains(t, buf.String(), "No open positions to evaluate.")
}

func TestRunEvaluate_PrintsVerdicts(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	var buf bytes.Buffer
	app.out = &buf

	pos := models.NewPosition("SPY", 180, 185, time.Now().UTC().Add(30*24*time.Hour), 4.00, 1)
	require.NoError(t, app.store.AddPosition(context.Background(), pos))

	require.NoError(t, app.runEvaluate(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "ACTION")
	assert.Contains(t, out, "SPY")
	assert.Contains(t, out, "180/185")

	hasAction := false
	for _, action := range []string{"HOLD", "CLOSE", "ROLL"} {
		if strings.Contains(out, action) {
			hasAction = true
			break
		}
	}
	assert.True(t, hasAction, "no recommendation rendered:\n%s", out)
}
