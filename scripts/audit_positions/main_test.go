package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
)

func TestCheckPosition(t *testing.T) {
	now := time.Date(2026, 8, 21, 15, 0, 0, 0, time.UTC)

	healthy := models.NewPosition("SPY", 180, 185, now.Add(30*24*time.Hour), 4.00, 1)
	if issues := checkPosition(healthy, now, true); len(issues) != 0 {
		t.Fatalf("healthy position flagged: %v", issues)
	}

	expired := models.NewPosition("SPY", 180, 185, now.Add(-24*time.Hour), 4.00, 1)
	issues := checkPosition(expired, now, true)
	if len(issues) != 1 || !strings.Contains(issues[0].Problem, "expired") {
		t.Fatalf("expired open position not flagged: %v", issues)
	}

	invalid := models.NewPosition("SPY", 180, 185, now.Add(30*24*time.Hour), 6.00, 1)
	issues = checkPosition(invalid, now, true)
	if len(issues) != 1 || !strings.Contains(issues[0].Problem, "fails validation") {
		t.Fatalf("cost above width not flagged: %v", issues)
	}
}

func TestCheckDuplicates(t *testing.T) {
	exp := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	a := models.NewPosition("SPY", 180, 185, exp, 4.00, 1)
	b := models.NewPosition("SPY", 180, 185, exp, 4.10, 2)
	c := models.NewPosition("QQQ", 420, 430, exp, 7.50, 1)

	issues := checkDuplicates([]models.Position{*a, *b, *c})
	if len(issues) != 1 {
		t.Fatalf("got %d issues, want 1: %v", len(issues), issues)
	}
	if issues[0].PositionID != b.ID || !strings.Contains(issues[0].Problem, a.ID) {
		t.Fatalf("duplicate issue blames the wrong record: %+v", issues[0])
	}
}

func TestRunAudit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStorage()

	open := models.NewPosition("SPY", 180, 185, time.Now().UTC().Add(30*24*time.Hour), 4.00, 1)
	if err := store.AddPosition(ctx, open); err != nil {
		t.Fatalf("AddPosition: %v", err)
	}

	audit, err := runAudit(ctx, store)
	if err != nil {
		t.Fatalf("runAudit: %v", err)
	}
	if audit.Checked != 1 || audit.Open != 1 || audit.Closed != 0 {
		t.Fatalf("counts = %d/%d/%d, want 1/1/0", audit.Checked, audit.Open, audit.Closed)
	}
	if len(audit.Issues) != 0 {
		t.Fatalf("unexpected issues: %v", audit.Issues)
	}
}
