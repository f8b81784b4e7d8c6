package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

// SQLiteStorage persists positions and scan history in a SQLite database via
// GORM. Semantics mirror JSONStorage; the gorm connection pool serializes
// concurrent access.
type SQLiteStorage struct {
	db *gorm.DB
}

var _ Interface = (*SQLiteStorage)(nil)

// dbPosition is the positions table row. Kept separate from the domain model
// so schema concerns stay out of models.
type dbPosition struct {
	ID          string `gorm:"primaryKey"`
	Symbol      string `gorm:"index"`
	LongStrike  float64
	ShortStrike float64
	Expiration  time.Time
	Contracts   int
	CostBasis   float64
	EntrySpot   float64
	EntryDate   time.Time
	Status      string `gorm:"index"`
	ExitDate    time.Time
	ExitValue   float64
	ExitReason  string
	Notes       string
}

func (dbPosition) TableName() string { return "positions" }

// dbScanRecord is the scan_records table row. The selection result is stored
// as a JSON blob; nothing queries inside it.
type dbScanRecord struct {
	ID        string    `gorm:"primaryKey"`
	Symbol    string    `gorm:"index"`
	ScannedAt time.Time `gorm:"index"`
	Spot      float64
	Result    []byte
}

func (dbScanRecord) TableName() string { return "scan_records" }

// NewSQLiteStorage opens or creates the database at path and migrates the
// schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite storage needs a file path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	if err := db.AutoMigrate(&dbPosition{}, &dbScanRecord{}); err != nil {
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func toDBPosition(p *models.Position) dbPosition {
	return dbPosition{
		ID:          p.ID,
		Symbol:      p.Symbol,
		LongStrike:  p.LongStrike,
		ShortStrike: p.ShortStrike,
		Expiration:  p.Expiration,
		Contracts:   p.Contracts,
		CostBasis:   p.CostBasis,
		EntrySpot:   p.EntrySpot,
		EntryDate:   p.EntryDate,
		Status:      string(p.Status),
		ExitDate:    p.ExitDate,
		ExitValue:   p.ExitValue,
		ExitReason:  p.ExitReason,
		Notes:       p.Notes,
	}
}

func (d *dbPosition) toModel() models.Position {
	return models.Position{
		ID:          d.ID,
		Symbol:      d.Symbol,
		LongStrike:  d.LongStrike,
		ShortStrike: d.ShortStrike,
		Expiration:  d.Expiration,
		Contracts:   d.Contracts,
		CostBasis:   d.CostBasis,
		EntrySpot:   d.EntrySpot,
		EntryDate:   d.EntryDate,
		Status:      models.PositionStatus(d.Status),
		ExitDate:    d.ExitDate,
		ExitValue:   d.ExitValue,
		ExitReason:  d.ExitReason,
		Notes:       d.Notes,
	}
}

// AddPosition stores a new open position.
func (s *SQLiteStorage) AddPosition(ctx context.Context, pos *models.Position) error {
	if pos == nil {
		return fmt.Errorf("no position to add")
	}
	if err := pos.Validate(); err != nil {
		return err
	}

	row := toDBPosition(pos)
	result := s.db.WithContext(ctx).
		Where("id = ?", pos.ID).
		FirstOrCreate(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to add position: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("position %s: %w", pos.ID, ErrDuplicatePosition)
	}
	return nil
}

// GetPositionByID returns the position with the given ID.
func (s *SQLiteStorage) GetPositionByID(ctx context.Context, id string) (*models.Position, error) {
	var row dbPosition
	result := s.db.WithContext(ctx).First(&row, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("position %s: %w", id, ErrPositionNotFound)
		}
		return nil, fmt.Errorf("failed to get position: %w", result.Error)
	}
	pos := row.toModel()
	return &pos, nil
}

// GetOpenPositions returns all open positions, newest entry first.
func (s *SQLiteStorage) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	var rows []dbPosition
	result := s.db.WithContext(ctx).
		Where("status = ?", string(models.StatusOpen)).
		Order("entry_date DESC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get open positions: %w", result.Error)
	}

	positions := make([]models.Position, len(rows))
	for i := range rows {
		positions[i] = rows[i].toModel()
	}
	return positions, nil
}

// UpdatePosition replaces the stored record with the given one.
func (s *SQLiteStorage) UpdatePosition(ctx context.Context, pos *models.Position) error {
	if pos == nil {
		return fmt.Errorf("no position to update")
	}
	if err := pos.Validate(); err != nil {
		return err
	}

	row := toDBPosition(pos)
	result := s.db.WithContext(ctx).
		Model(&dbPosition{}).
		Where("id = ?", pos.ID).
		Select("*").
		Updates(row)
	if result.Error != nil {
		return fmt.Errorf("failed to update position: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("position %s: %w", pos.ID, ErrPositionNotFound)
	}
	return nil
}

// ClosePosition transitions an open position to closed and reports the
// realized outcome.
func (s *SQLiteStorage) ClosePosition(ctx context.Context, id string, exitValue float64, reason string) (models.CloseSummary, error) {
	pos, err := s.GetPositionByID(ctx, id)
	if err != nil {
		return models.CloseSummary{}, err
	}

	summary, err := pos.Close(exitValue, reason, time.Now().UTC())
	if err != nil {
		return models.CloseSummary{}, err
	}
	if err := s.UpdatePosition(ctx, pos); err != nil {
		return models.CloseSummary{}, err
	}
	return summary, nil
}

// AddScanRecord appends a scan outcome.
func (s *SQLiteStorage) AddScanRecord(ctx context.Context, rec *models.ScanRecord) error {
	if rec == nil {
		return fmt.Errorf("no scan record to add")
	}

	raw, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode scan result: %w", err)
	}

	row := dbScanRecord{
		ID:        rec.ID,
		Symbol:    rec.Symbol,
		ScannedAt: rec.Timestamp,
		Spot:      rec.Spot,
		Result:    raw,
	}
	if result := s.db.WithContext(ctx).Create(&row); result.Error != nil {
		return fmt.Errorf("failed to add scan record: %w", result.Error)
	}
	return nil
}

// GetRecentScans returns up to limit scan records, newest first. A
// non-positive limit returns everything.
func (s *SQLiteStorage) GetRecentScans(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	q := s.db.WithContext(ctx).Order("scanned_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []dbScanRecord
	if result := q.Find(&rows); result.Error != nil {
		return nil, fmt.Errorf("failed to get scan records: %w", result.Error)
	}

	records := make([]models.ScanRecord, 0, len(rows))
	for i := range rows {
		var sel spread.SelectionResult
		if err := json.Unmarshal(rows[i].Result, &sel); err != nil {
			return nil, fmt.Errorf("failed to decode scan result %s: %w", rows[i].ID, err)
		}
		records = append(records, models.ScanRecord{
			ID:        rows[i].ID,
			Symbol:    rows[i].Symbol,
			Timestamp: rows[i].ScannedAt,
			Spot:      rows[i].Spot,
			Result:    sel,
		})
	}
	return records, nil
}

// GetHistory returns all closed positions, newest exit first.
func (s *SQLiteStorage) GetHistory(ctx context.Context) ([]models.Position, error) {
	var rows []dbPosition
	result := s.db.WithContext(ctx).
		Where("status = ?", string(models.StatusClosed)).
		Order("exit_date DESC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get history: %w", result.Error)
	}

	positions := make([]models.Position, len(rows))
	for i := range rows {
		positions[i] = rows[i].toModel()
	}
	return positions, nil
}

// GetStatistics derives the summary from the stored positions.
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*Statistics, error) {
	var rows []dbPosition
	if result := s.db.WithContext(ctx).Find(&rows); result.Error != nil {
		return nil, fmt.Errorf("failed to load positions for statistics: %w", result.Error)
	}

	positions := make([]models.Position, len(rows))
	for i := range rows {
		positions[i] = rows[i].toModel()
	}
	return buildStatistics(positions), nil
}

// Close shuts down the underlying connection pool.
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
