// audit_positions - A utility to audit stored positions against the model
// invariants. It reports records that would fail validation plus book-level
// consistency problems the per-record checks cannot see.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/config"
	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
)

type auditIssue struct {
	PositionID string `json:"position_id"`
	Symbol     string `json:"symbol"`
	Problem    string `json:"problem"`
}

type auditResult struct {
	Checked int          `json:"checked"`
	Open    int          `json:"open"`
	Closed  int          `json:"closed"`
	Issues  []auditIssue `json:"issues"`
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		jsonOutput = flag.Bool("json", false, "Output results as JSON")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *verbose {
		fmt.Printf("Using config: %s\n", *configPath)
		fmt.Printf("Storage backend: %s\n", cfg.Storage.Backend)
		fmt.Println()
	}

	ctx := context.Background()
	store, err := storage.NewStorage(ctx, storage.Config{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
		DSN:     cfg.Storage.DSN,
	})
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Failed to close storage: %v", err)
		}
	}()

	fmt.Println("Auditing stored positions...")
	audit, err := runAudit(ctx, store)
	if err != nil {
		log.Fatalf("Audit failed: %v", err)
	}

	if *jsonOutput {
		output, err := json.MarshalIndent(audit, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal JSON: %v", err)
		}
		fmt.Println(string(output))
		return
	}

	printReport(audit)
}

func runAudit(ctx context.Context, store storage.Interface) (*auditResult, error) {
	open, err := store.GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading open positions: %w", err)
	}
	closed, err := store.GetHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	audit := &auditResult{
		Checked: len(open) + len(closed),
		Open:    len(open),
		Closed:  len(closed),
	}

	now := time.Now().UTC()
	for i := range open {
		audit.Issues = append(audit.Issues, checkPosition(&open[i], now, true)...)
	}
	for i := range closed {
		audit.Issues = append(audit.Issues, checkPosition(&closed[i], now, false)...)
	}
	audit.Issues = append(audit.Issues, checkDuplicates(open)...)

	return audit, nil
}

// checkPosition runs the model's own validation plus staleness checks that
// only make sense when looking at the book after the fact.
func checkPosition(pos *models.Position, now time.Time, open bool) []auditIssue {
	var issues []auditIssue

	report := func(problem string) {
		issues = append(issues, auditIssue{
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Problem:    problem,
		})
	}

	if err := pos.Validate(); err != nil {
		report(fmt.Sprintf("fails validation: %v", err))
	}

	if open && pos.Expiration.Before(now) {
		report(fmt.Sprintf("still open but expired %s", pos.Expiration.Format("2006-01-02")))
	}
	if open && !pos.Expiration.Before(now) && pos.CalculateDTE(now) == 0 {
		report("expires today; evaluate or close before the session ends")
	}
	if !open && pos.ExitDate.After(now) {
		report(fmt.Sprintf("exit date %s is in the future", pos.ExitDate.Format("2006-01-02")))
	}

	return issues
}

// checkDuplicates flags open positions sharing symbol, strikes and
// expiration. The store rejects duplicate IDs but cannot see two records
// describing one real trade.
func checkDuplicates(open []models.Position) []auditIssue {
	var issues []auditIssue

	seen := make(map[string]string, len(open))
	for i := range open {
		p := &open[i]
		key := fmt.Sprintf("%s %.2f/%.2f %s", p.Symbol, p.LongStrike, p.ShortStrike,
			p.Expiration.Format("2006-01-02"))
		if firstID, dup := seen[key]; dup {
			issues = append(issues, auditIssue{
				PositionID: p.ID,
				Symbol:     p.Symbol,
				Problem:    fmt.Sprintf("duplicate of %s (%s)", firstID, key),
			})
			continue
		}
		seen[key] = p.ID
	}

	return issues
}

func printReport(audit *auditResult) {
	fmt.Println()
	fmt.Printf("Checked %d position(s): %d open, %d closed\n", audit.Checked, audit.Open, audit.Closed)
	fmt.Println()

	if len(audit.Issues) == 0 {
		fmt.Println("No issues found.")
		return
	}

	fmt.Printf("ISSUES FOUND (%d):\n", len(audit.Issues))
	for i, issue := range audit.Issues {
		fmt.Printf("  %d. %s %s: %s\n", i+1, issue.Symbol, issue.PositionID, issue.Problem)
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Fix or close the flagged records before the next monitor cycle")
	fmt.Println("  2. Re-run with -json to archive the audit output")
}
