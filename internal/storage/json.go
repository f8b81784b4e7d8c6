package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
)

// schemaVersion is written into the file so a newer build's layout is
// detected instead of silently misread.
const schemaVersion = 1

// maxScanRecords caps the scan history kept in the file; older records are
// dropped first.
const maxScanRecords = 500

// JSONStorage persists everything in a single JSON file guarded by a
// read-write mutex. Every mutation saves via a temp file and an atomic
// rename so a crash mid-write cannot corrupt the store.
type JSONStorage struct {
	mu   sync.RWMutex
	path string
	data *fileData
}

var _ Interface = (*JSONStorage)(nil)

type fileData struct {
	SchemaVersion int                 `json:"schema_version"`
	Positions     []models.Position   `json:"positions"`
	Scans         []models.ScanRecord `json:"scans"`
	LastUpdated   time.Time           `json:"last_updated"`
}

// NewJSONStorage opens or creates the store at path.
func NewJSONStorage(path string) (*JSONStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("json storage needs a file path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}

	s := &JSONStorage{
		path: path,
		data: &fileData{SchemaVersion: schemaVersion},
	}

	// Load existing data if file exists
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

func (s *JSONStorage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	if data.SchemaVersion > schemaVersion {
		return fmt.Errorf("storage file %s has schema version %d, this build understands up to %d",
			s.path, data.SchemaVersion, schemaVersion)
	}
	data.SchemaVersion = schemaVersion

	s.data = &data
	return nil
}

// saveLocked writes the store to disk. Callers must hold the write lock.
func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first
	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.path)
}

func (s *JSONStorage) findLocked(id string) int {
	for i := range s.data.Positions {
		if s.data.Positions[i].ID == id {
			return i
		}
	}
	return -1
}

// AddPosition stores a new open position.
func (s *JSONStorage) AddPosition(_ context.Context, pos *models.Position) error {
	if pos == nil {
		return fmt.Errorf("no position to add")
	}
	if err := pos.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(pos.ID) >= 0 {
		return fmt.Errorf("position %s: %w", pos.ID, ErrDuplicatePosition)
	}
	s.data.Positions = append(s.data.Positions, *pos)
	return s.saveLocked()
}

// GetPositionByID returns a copy of the position with the given ID.
func (s *JSONStorage) GetPositionByID(_ context.Context, id string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.findLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("position %s: %w", id, ErrPositionNotFound)
	}
	pos := s.data.Positions[i]
	return &pos, nil
}

// GetOpenPositions returns copies of all open positions, newest entry first.
func (s *JSONStorage) GetOpenPositions(_ context.Context) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var open []models.Position
	for _, p := range s.data.Positions {
		if p.Status == models.StatusOpen {
			open = append(open, p)
		}
	}
	sortByEntryDesc(open)
	return open, nil
}

// UpdatePosition replaces the stored record with the given one.
func (s *JSONStorage) UpdatePosition(_ context.Context, pos *models.Position) error {
	if pos == nil {
		return fmt.Errorf("no position to update")
	}
	if err := pos.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(pos.ID)
	if i < 0 {
		return fmt.Errorf("position %s: %w", pos.ID, ErrPositionNotFound)
	}
	s.data.Positions[i] = *pos
	return s.saveLocked()
}

// ClosePosition transitions an open position to closed and reports the
// realized outcome.
func (s *JSONStorage) ClosePosition(_ context.Context, id string, exitValue float64, reason string) (models.CloseSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(id)
	if i < 0 {
		return models.CloseSummary{}, fmt.Errorf("position %s: %w", id, ErrPositionNotFound)
	}

	summary, err := s.data.Positions[i].Close(exitValue, reason, time.Now().UTC())
	if err != nil {
		return models.CloseSummary{}, err
	}
	return summary, s.saveLocked()
}

// AddScanRecord appends a scan outcome, dropping the oldest past the cap.
func (s *JSONStorage) AddScanRecord(_ context.Context, rec *models.ScanRecord) error {
	if rec == nil {
		return fmt.Errorf("no scan record to add")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Scans = append(s.data.Scans, *rec)
	if n := len(s.data.Scans); n > maxScanRecords {
		s.data.Scans = append([]models.ScanRecord(nil), s.data.Scans[n-maxScanRecords:]...)
	}
	return s.saveLocked()
}

// GetRecentScans returns up to limit scan records, newest first. A
// non-positive limit returns everything.
func (s *JSONStorage) GetRecentScans(_ context.Context, limit int) ([]models.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.data.Scans)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.ScanRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.data.Scans[i])
	}
	return out, nil
}

// GetHistory returns copies of all closed positions, newest exit first.
func (s *JSONStorage) GetHistory(_ context.Context) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var closed []models.Position
	for _, p := range s.data.Positions {
		if p.Status == models.StatusClosed {
			closed = append(closed, p)
		}
	}
	sortByExitDesc(closed)
	return closed, nil
}

// GetStatistics derives the summary from the stored positions.
func (s *JSONStorage) GetStatistics(_ context.Context) (*Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return buildStatistics(s.data.Positions), nil
}

// Close is a no-op; every mutation already saved.
func (s *JSONStorage) Close() error {
	return nil
}
