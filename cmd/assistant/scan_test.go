package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

func pickOutcome(symbol string, spot, score float64) scanOutcome {
	return scanOutcome{
		Symbol: symbol,
		Spot:   spot,
		Result: spread.SelectionResult{
			Primary: &spread.Recommendation{
				LongStrike:          180,
				ShortStrike:         185,
				Expiration:          time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC),
				DTE:                 27,
				EstimatedDebit:      4.05,
				MaxProfit:           0.95,
				ReturnOnRiskPct:     23.5,
				CushionPct:          3.1,
				ProbabilityOfProfit: 62,
				TotalScore:          score,
			},
		},
	}
}

func TestPrintScanTable_RanksByScore(t *testing.T) {
	outcomes := []scanOutcome{
		pickOutcome("BBB", 190, 41.5),
		{Symbol: "DDD", Err: errors.New("boom")},
		pickOutcome("AAA", 210, 83.2),
		{Symbol: "CCC", Spot: 55, Result: spread.SelectionResult{Reason: "no strikes in the entry band"}},
	}

	var buf bytes.Buffer
	printScanTable(&buf, outcomes)
	out := buf.String()

	aaa := strings.Index(out, "AAA")
	bbb := strings.Index(out, "BBB")
	ccc := strings.Index(out, "CCC")
	ddd := strings.Index(out, "DDD")
	require.True(t, aaa >= 0 && bbb >= 0 && ccc >= 0 && ddd >= 0, "missing rows:\n%s", out)

	assert.Less(t, aaa, bbb, "higher score first")
	assert.Less(t, bbb, ccc, "picks before no-pick rows")
	assert.Less(t, ccc, ddd, "failed scans last")

	assert.Contains(t, out, "180/185")
	assert.Contains(t, out, "2026-09-18")
	assert.Contains(t, out, "no strikes in the entry band")
	assert.Contains(t, out, "error: boom")
}

func TestPrintScanTable_ShowsBudgetNote(t *testing.T) {
	out := pickOutcome("SPY", 200, 64.0)
	out.Result.Reason = "top pick over budget; showing best affordable spread"

	var buf bytes.Buffer
	printScanTable(&buf, []scanOutcome{out})

	assert.Contains(t, buf.String(), "best affordable")
}

func TestScanSymbols_AllOutcomes(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	outcomes := app.scanSymbols(context.Background(), []string{"SPY", "QQQ", "IWM"})
	require.Len(t, outcomes, 3)

	for i, symbol := range []string{"SPY", "QQQ", "IWM"} {
		assert.Equal(t, symbol, outcomes[i].Symbol, "outcomes keep symbol order")
		assert.NoError(t, outcomes[i].Err)
		assert.Greater(t, outcomes[i].Spot, 0.0)
	}
}

func TestRunScan_PersistsRecords(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	var buf bytes.Buffer
	app.out = &buf

	require.NoError(t, app.runScan(context.Background()))

	scans, err := app.store.GetRecentScans(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, scans, 2, "one record per configured symbol")

	out := buf.String()
	assert.Contains(t, out, "SYMBOL")
	assert.Contains(t, out, "SPY")
	assert.Contains(t, out, "QQQ")
}
