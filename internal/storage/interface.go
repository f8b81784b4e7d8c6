package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
)

// Interface defines the contract for position and scan-history persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can safely call them from multiple
// goroutines. Methods return copies; mutating a returned position never
// changes the stored record until UpdatePosition writes it back.
type Interface interface {
	// Position management
	AddPosition(ctx context.Context, pos *models.Position) error
	GetPositionByID(ctx context.Context, id string) (*models.Position, error)
	GetOpenPositions(ctx context.Context) ([]models.Position, error)
	UpdatePosition(ctx context.Context, pos *models.Position) error
	ClosePosition(ctx context.Context, id string, exitValue float64, reason string) (models.CloseSummary, error)

	// Scan history
	AddScanRecord(ctx context.Context, rec *models.ScanRecord) error
	GetRecentScans(ctx context.Context, limit int) ([]models.ScanRecord, error)

	// Historical data and analytics
	GetHistory(ctx context.Context) ([]models.Position, error)
	GetStatistics(ctx context.Context) (*Statistics, error)

	// Close releases backend resources. The file backend is a no-op.
	Close() error
}

// Statistics summarizes realized results across closed positions plus the
// open-position count. Win rate is a percentage of decided trades; a
// breakeven close counts toward totals but decides nothing.
type Statistics struct {
	TotalTrades   int     `json:"total_trades"`
	OpenTrades    int     `json:"open_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AveragePnL    float64 `json:"average_pnl"`
}

// Config selects and parameterizes a storage backend.
type Config struct {
	Backend string // json | sqlite | postgres
	Path    string // file path for json and sqlite
	DSN     string // connection string for postgres
}

// NewStorage creates the storage implementation selected by cfg.Backend.
// An empty backend means JSON.
func NewStorage(ctx context.Context, cfg Config) (Interface, error) {
	switch cfg.Backend {
	case "", "json":
		return NewJSONStorage(cfg.Path)
	case "sqlite":
		return NewSQLiteStorage(cfg.Path)
	case "postgres":
		return NewPostgresStorage(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// buildStatistics derives the summary from the full position set. Statistics
// are never stored; deriving keeps every backend consistent by construction.
func buildStatistics(positions []models.Position) *Statistics {
	stats := &Statistics{}
	for i := range positions {
		p := &positions[i]
		switch p.Status {
		case models.StatusOpen:
			stats.OpenTrades++
			continue
		case models.StatusClosed:
		default:
			continue
		}

		stats.TotalTrades++
		pnl := p.NetProfit()
		stats.TotalPnL += pnl
		switch {
		case pnl > 0:
			stats.WinningTrades++
		case pnl < 0:
			stats.LosingTrades++
		}
	}

	if decided := stats.WinningTrades + stats.LosingTrades; decided > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(decided) * 100
	}
	if stats.TotalTrades > 0 {
		stats.AveragePnL = stats.TotalPnL / float64(stats.TotalTrades)
	}
	return stats
}

// sortByEntryDesc orders positions newest entry first.
func sortByEntryDesc(positions []models.Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].EntryDate.After(positions[j].EntryDate)
	})
}

// sortByExitDesc orders positions newest exit first.
func sortByExitDesc(positions []models.Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].ExitDate.After(positions[j].ExitDate)
	})
}

// Ensure every backend implements Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*SQLiteStorage)(nil)
	_ Interface = (*PostgresStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
