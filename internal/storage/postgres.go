package storage

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStorage persists positions and scan history in PostgreSQL via a
// pgx connection pool. Embedded migrations are applied at open and tracked
// in a schema_migrations table.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

var _ Interface = (*PostgresStorage)(nil)

// NewPostgresStorage connects to the database at dsn and applies pending
// migrations.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres storage needs a dsn")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &PostgresStorage{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// runMigrations reads embedded SQL files from the migrations/ directory,
// applies them in lexicographic order, and tracks applied migrations in a
// schema_migrations table.
func (s *PostgresStorage) runMigrations(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("postgres: create schema_migrations table: %w", err)
	}

	names, err := migrationFiles()
	if err != nil {
		return err
	}

	for _, name := range names {
		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)",
			name,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("postgres: check migration %s: %w", name, err)
		}
		if exists {
			continue
		}

		raw, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", name, err)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("postgres: begin tx for %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx, string(raw)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: exec migration %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (filename) VALUES ($1)", name,
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: record migration %s: %w", name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("postgres: commit migration %s: %w", name, err)
		}
	}

	return nil
}

// migrationFiles lists the embedded migration names in apply order.
func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("postgres: read migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

const positionSelectCols = `id, symbol, long_strike, short_strike, expiration,
	contracts, cost_basis, entry_spot, entry_date, status,
	exit_date, exit_value, exit_reason, notes`

func scanPositionRow(row pgx.Row) (models.Position, error) {
	var p models.Position
	var status string
	var exitDate *time.Time
	var exitValue *float64

	err := row.Scan(
		&p.ID, &p.Symbol, &p.LongStrike, &p.ShortStrike, &p.Expiration,
		&p.Contracts, &p.CostBasis, &p.EntrySpot, &p.EntryDate, &status,
		&exitDate, &exitValue, &p.ExitReason, &p.Notes,
	)
	if err != nil {
		return models.Position{}, err
	}
	p.Status = models.PositionStatus(status)
	if exitDate != nil {
		p.ExitDate = *exitDate
	}
	if exitValue != nil {
		p.ExitValue = *exitValue
	}
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]models.Position, error) {
	var positions []models.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// nullableExit maps zero exit fields to NULL for open positions.
func nullableExit(p *models.Position) (*time.Time, *float64) {
	if p.Status != models.StatusClosed {
		return nil, nil
	}
	exitDate := p.ExitDate
	exitValue := p.ExitValue
	return &exitDate, &exitValue
}

// AddPosition stores a new open position.
func (s *PostgresStorage) AddPosition(ctx context.Context, pos *models.Position) error {
	if pos == nil {
		return fmt.Errorf("no position to add")
	}
	if err := pos.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO positions (
			id, symbol, long_strike, short_strike, expiration,
			contracts, cost_basis, entry_spot, entry_date, status,
			exit_date, exit_value, exit_reason, notes
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14
		) ON CONFLICT (id) DO NOTHING`

	exitDate, exitValue := nullableExit(pos)
	tag, err := s.pool.Exec(ctx, query,
		pos.ID, pos.Symbol, pos.LongStrike, pos.ShortStrike, pos.Expiration,
		pos.Contracts, pos.CostBasis, pos.EntrySpot, pos.EntryDate, string(pos.Status),
		exitDate, exitValue, pos.ExitReason, pos.Notes,
	)
	if err != nil {
		return fmt.Errorf("postgres: add position %s: %w", pos.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s: %w", pos.ID, ErrDuplicatePosition)
	}
	return nil
}

// GetPositionByID retrieves a single position by its ID.
func (s *PostgresStorage) GetPositionByID(ctx context.Context, id string) (*models.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("position %s: %w", id, ErrPositionNotFound)
		}
		return nil, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return &p, nil
}

// GetOpenPositions returns all open positions, newest entry first.
func (s *PostgresStorage) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY entry_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// UpdatePosition replaces all mutable fields of a position.
func (s *PostgresStorage) UpdatePosition(ctx context.Context, pos *models.Position) error {
	if pos == nil {
		return fmt.Errorf("no position to update")
	}
	if err := pos.Validate(); err != nil {
		return err
	}

	const query = `
		UPDATE positions SET
			symbol       = $2,
			long_strike  = $3,
			short_strike = $4,
			expiration   = $5,
			contracts    = $6,
			cost_basis   = $7,
			entry_spot   = $8,
			entry_date   = $9,
			status       = $10,
			exit_date    = $11,
			exit_value   = $12,
			exit_reason  = $13,
			notes        = $14
		WHERE id = $1`

	exitDate, exitValue := nullableExit(pos)
	tag, err := s.pool.Exec(ctx, query,
		pos.ID, pos.Symbol, pos.LongStrike, pos.ShortStrike, pos.Expiration,
		pos.Contracts, pos.CostBasis, pos.EntrySpot, pos.EntryDate, string(pos.Status),
		exitDate, exitValue, pos.ExitReason, pos.Notes,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", pos.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s: %w", pos.ID, ErrPositionNotFound)
	}
	return nil
}

// ClosePosition transitions an open position to closed and reports the
// realized outcome.
func (s *PostgresStorage) ClosePosition(ctx context.Context, id string, exitValue float64, reason string) (models.CloseSummary, error) {
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
func (s *PostgresStorage) AddScanRecord(ctx context.Context, rec *models.ScanRecord) error {
	if rec == nil {
		return fmt.Errorf("no scan record to add")
	}

	raw, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode scan result: %w", err)
	}

	const query = `
		INSERT INTO scan_records (id, symbol, scanned_at, spot, result)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Symbol, rec.Timestamp, rec.Spot, raw,
	); err != nil {
		return fmt.Errorf("postgres: add scan record %s: %w", rec.ID, err)
	}
	return nil
}

// GetRecentScans returns up to limit scan records, newest first. A
// non-positive limit returns everything.
func (s *PostgresStorage) GetRecentScans(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	query := `SELECT id, symbol, scanned_at, spot, result FROM scan_records ORDER BY scanned_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: get scan records: %w", err)
	}
	defer rows.Close()

	var records []models.ScanRecord
	for rows.Next() {
		var rec models.ScanRecord
		var raw []byte
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Timestamp, &rec.Spot, &raw); err != nil {
			return nil, fmt.Errorf("postgres: scan scan record: %w", err)
		}
		var sel spread.SelectionResult
		if err := json.Unmarshal(raw, &sel); err != nil {
			return nil, fmt.Errorf("failed to decode scan result %s: %w", rec.ID, err)
		}
		rec.Result = sel
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate scan records: %w", err)
	}
	return records, nil
}

// GetHistory returns all closed positions, newest exit first.
func (s *PostgresStorage) GetHistory(ctx context.Context) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'closed'
		 ORDER BY exit_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: get history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan history: %w", err)
	}
	return positions, nil
}

// GetStatistics derives the summary from the stored positions.
func (s *PostgresStorage) GetStatistics(ctx context.Context) (*Statistics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load positions for statistics: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions for statistics: %w", err)
	}
	return buildStatistics(positions), nil
}

// Close shuts down the connection pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
