// probe_tradier - A utility to exercise the Tradier market data endpoints
// with a real API key: underlying quote, expirations, the chain nearest a
// target DTE, and daily history. Read-only; no account is touched.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/marketdata"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

func main() {
	var (
		sandbox   bool
		symbol    string
		targetDTE int
	)
	flag.BoolVar(&sandbox, "sandbox", true, "Use Tradier sandbox endpoints (default: true)")
	flag.StringVar(&symbol, "symbol", "SPY", "Underlying symbol to probe")
	flag.IntVar(&targetDTE, "dte", 45, "Target days to expiration for the chain probe")
	flag.Parse()
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	fmt.Println("=== Tradier Market Data Probe ===")
	fmt.Println()

	apiKey := os.Getenv("TRADIER_API_KEY")
	if apiKey == "" {
		fmt.Println("❌ TRADIER_API_KEY not set")
		fmt.Println("\nSetup Instructions:")
		fmt.Println("1. Go to https://developer.tradier.com/")
		fmt.Println("2. Sign up for a free account")
		fmt.Println("3. Get your sandbox API token")
		fmt.Println("4. Export it:")
		fmt.Println("   export TRADIER_API_KEY='your_token_here'")
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "[tradier] ", log.LstdFlags)
	client := marketdata.NewTradierClient(apiKey, sandbox, logger)
	if sandbox {
		fmt.Println("✓ Initialized Tradier client (Sandbox mode)")
	} else {
		fmt.Println("✓ Initialized Tradier client (Live mode)")
	}
	fmt.Printf("  API Key: %s\n", maskAPIKey(apiKey))
	fmt.Printf("  Symbol:  %s\n", symbol)
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Probe 1: Underlying quote
	fmt.Printf("Probe 1: %s Quote\n", symbol)
	fmt.Println("=" + strings.Repeat("=", 40))

	quote, err := client.GetQuote(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Error: %v\n\n", err)
	} else {
		fmt.Printf("✓ %s Quote Retrieved:\n", symbol)
		fmt.Printf("  Last: $%.2f\n", quote.Last)
		fmt.Printf("  Bid:  $%.2f\n", quote.Bid)
		fmt.Printf("  Ask:  $%.2f\n", quote.Ask)
		fmt.Printf("  Volume: %s\n", formatNumber(quote.Volume))
		if quote.PrevClose > 0 {
			change := quote.Last - quote.PrevClose
			fmt.Printf("  Change: $%.2f (%.2f%%)\n", change, change/quote.PrevClose*100)
		}
		fmt.Println()
	}

	// Probe 2: Option expirations
	fmt.Printf("Probe 2: %s Option Expirations\n", symbol)
	fmt.Println("=" + strings.Repeat("=", 40))

	expirations, err := client.GetExpirations(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Error: %v\n\n", err)
	} else {
		fmt.Printf("✓ Found %d expirations\n", len(expirations))
		fmt.Println("\n  Next 10 expirations (with DTE):")
		now := time.Now()
		shown := 0
		for _, exp := range expirations {
			dte := daysUntil(exp, now)
			if dte < 0 {
				continue
			}
			shown++
			fmt.Printf("  %d. %s (DTE: %d)\n", shown, exp.Format("2006-01-02"), dte)
			if shown == 10 {
				break
			}
		}
		fmt.Println()
	}

	// Probe 3: Chain nearest the target DTE
	fmt.Printf("Probe 3: %s Chain Nearest %d DTE\n", symbol, targetDTE)
	fmt.Println("=" + strings.Repeat("=", 40))

	chain, err := client.GetChainNearestDTE(ctx, symbol, targetDTE)
	if err != nil {
		fmt.Printf("❌ Error: %v\n\n", err)
	} else {
		fmt.Printf("✓ Chain Retrieved:\n")
		fmt.Printf("  Expiration: %s (DTE: %d)\n", chain.Expiration.Format("2006-01-02"), chain.DTE)
		fmt.Printf("  Spot: $%.2f\n", chain.Spot)
		fmt.Printf("  Calls: %d  Puts: %d\n", len(chain.Calls), len(chain.Puts))

		near := nearestStrikes(chain.Calls, chain.Spot, 5)
		if len(near) > 0 {
			fmt.Println("\n  Calls nearest the spot:")
			fmt.Println("  STRIKE     BID     ASK     MID      OI")
			for _, q := range near {
				marker := " "
				if q.Strike < chain.Spot {
					marker = "*" // in the money
				}
				fmt.Printf("  %7.2f%s %7.2f %7.2f %7.2f %7d\n",
					q.Strike, marker, q.Bid, q.Ask, q.Mid(), q.OpenInterest)
			}
		}
		fmt.Println()
	}

	// Probe 4: Daily history
	fmt.Printf("Probe 4: %s Daily History (30 days)\n", symbol)
	fmt.Println("=" + strings.Repeat("=", 40))

	bars, err := client.GetDailyHistory(ctx, symbol, 30)
	if err != nil {
		fmt.Printf("❌ Error: %v\n\n", err)
	} else if len(bars) == 0 {
		fmt.Println("⚠️  No bars returned")
		fmt.Println()
	} else {
		last := bars[len(bars)-1]
		fmt.Printf("✓ Retrieved %d bars (%s through %s)\n", len(bars), bars[0].Date, last.Date)
		fmt.Printf("  Last close: $%.2f (volume %s)\n\n", last.Close, formatNumber(last.Volume))
	}

	fmt.Println("=== Probe Complete ===")
	fmt.Println("\nNext Steps:")
	fmt.Println("1. Review the chain summary above for sane quotes and open interest")
	fmt.Printf("2. Run the assistant in scan mode against %s with the same key\n", symbol)
	if sandbox {
		fmt.Println("3. Re-run with -sandbox=false to verify the production endpoints")
	}
}

// nearestStrikes returns up to n quotes closest to spot, in ascending
// strike order.
func nearestStrikes(quotes []spread.Quote, spot float64, n int) []spread.Quote {
	sorted := make([]spread.Quote, len(quotes))
	copy(sorted, quotes)
	sort.Slice(sorted, func(i, j int) bool {
		return absFloat(sorted[i].Strike-spot) < absFloat(sorted[j].Strike-spot)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Strike < sorted[j].Strike })
	return sorted
}

func daysUntil(exp, now time.Time) int {
	e := time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(n).Hours() / 24)
}

func formatNumber(n int64) string {
	switch {
	case n >= 1000000:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	case n >= 1000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func maskAPIKey(key string) string {
	if len(key) < 12 {
		return "<redacted>"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
