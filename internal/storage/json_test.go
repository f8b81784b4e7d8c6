package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

func TestNewJSONStorage_RequiresPath(t *testing.T) {
	if _, err := NewJSONStorage(""); err == nil {
		t.Error("Expected error for empty path, got nil")
	}
}

func TestJSONStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "positions.json")

	store, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	pos := models.NewPosition("SPY", 180, 185, time.Now().UTC().AddDate(0, 0, 30), 4.00, 1)
	if err := store.AddPosition(ctx, pos); err != nil {
		t.Fatalf("Failed to add position: %v", err)
	}
	rec := models.NewScanRecord("SPY", 500.10, spread.SelectionResult{Reason: "no viable candidates"}, time.Now().UTC())
	if err := store.AddScanRecord(ctx, rec); err != nil {
		t.Fatalf("Failed to add scan record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close storage: %v", err)
	}

	reopened, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	got, err := reopened.GetPositionByID(ctx, pos.ID)
	if err != nil {
		t.Fatalf("Position lost across reopen: %v", err)
	}
	if got.Symbol != "SPY" || got.CostBasis != 4.00 {
		t.Errorf("Position fields mangled across reopen: %+v", got)
	}
	scans, err := reopened.GetRecentScans(ctx, 0)
	if err != nil {
		t.Fatalf("GetRecentScans after reopen: %v", err)
	}
	if len(scans) != 1 || scans[0].ID != rec.ID {
		t.Errorf("Scan record lost across reopen, got %d records", len(scans))
	}

	raw, err := os.ReadFile(path) // #nosec G304 - test-owned temp path
	if err != nil {
		t.Fatalf("Failed to read storage file: %v", err)
	}
	if !strings.Contains(string(raw), `"schema_version": 1`) {
		t.Error("Storage file missing schema version marker")
	}
}

func TestJSONStorage_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	future := `{"schema_version": 99, "positions": [], "scans": []}`
	if err := os.WriteFile(path, []byte(future), 0o644); err != nil {
		t.Fatalf("Failed to seed storage file: %v", err)
	}

	_, err := NewJSONStorage(path)
	if err == nil {
		t.Fatal("Expected error for future schema version, got nil")
	}
	if !strings.Contains(err.Error(), "schema version 99") {
		t.Errorf("Expected schema version in error, got: %v", err)
	}
}

func TestJSONStorage_SaveLeavesNoTempFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "positions.json")
	store, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	pos := models.NewPosition("SPY", 180, 185, time.Now().UTC().AddDate(0, 0, 30), 4.00, 1)
	if err := store.AddPosition(ctx, pos); err != nil {
		t.Fatalf("Failed to add position: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Temp file left behind after save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Storage file missing after save: %v", err)
	}
}

func TestJSONStorage_CreatesParentDir(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "nested", "positions.json")
	store, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("Failed to create storage in nested dir: %v", err)
	}

	pos := models.NewPosition("SPY", 180, 185, time.Now().UTC().AddDate(0, 0, 30), 4.00, 1)
	if err := store.AddPosition(ctx, pos); err != nil {
		t.Fatalf("Failed to add position: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Storage file missing: %v", err)
	}
}

func TestJSONStorage_CapsScanHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "positions.json")
	store, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	store.mu.Lock()
	store.data.Scans = make([]models.ScanRecord, maxScanRecords)
	for i := range store.data.Scans {
		store.data.Scans[i] = *models.NewScanRecord("SPY", 500, spread.SelectionResult{}, time.Now().UTC())
	}
	store.mu.Unlock()

	rec := models.NewScanRecord("QQQ", 430.55, spread.SelectionResult{}, time.Now().UTC())
	if err := store.AddScanRecord(ctx, rec); err != nil {
		t.Fatalf("Failed to add scan record: %v", err)
	}

	store.mu.RLock()
	defer store.mu.RUnlock()
	if len(store.data.Scans) != maxScanRecords {
		t.Errorf("Expected scan history capped at %d, got %d", maxScanRecords, len(store.data.Scans))
	}
	if store.data.Scans[len(store.data.Scans)-1].ID != rec.ID {
		t.Error("Newest scan record missing after trim")
	}
}
