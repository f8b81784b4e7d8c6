package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
)

// MockStorage implements Interface in memory for testing.
type MockStorage struct {
	mu        sync.Mutex
	positions []models.Position
	scans     []models.ScanRecord

	forcedErr  error
	writeCalls int
}

var _ Interface = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

// SetError makes every subsequent operation fail with err. Pass nil to
// clear.
func (m *MockStorage) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forcedErr = err
}

// WriteCallCount reports how many mutating operations were attempted.
func (m *MockStorage) WriteCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCalls
}

func (m *MockStorage) findLocked(id string) int {
	for i := range m.positions {
		if m.positions[i].ID == id {
			return i
		}
	}
	return -1
}

// AddPosition stores a new open position.
func (m *MockStorage) AddPosition(_ context.Context, pos *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.forcedErr != nil {
		return m.forcedErr
	}
	if pos == nil {
		return fmt.Errorf("no position to add")
	}
	if err := pos.Validate(); err != nil {
		return err
	}
	if m.findLocked(pos.ID) >= 0 {
		return fmt.Errorf("position %s: %w", pos.ID, ErrDuplicatePosition)
	}
	m.positions = append(m.positions, *pos)
	return nil
}

// GetPositionByID returns a copy of the position with the given ID.
func (m *MockStorage) GetPositionByID(_ context.Context, id string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	i := m.findLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("position %s: %w", id, ErrPositionNotFound)
	}
	pos := m.positions[i]
	return &pos, nil
}

// GetOpenPositions returns copies of all open positions, newest entry first.
func (m *MockStorage) GetOpenPositions(_ context.Context) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	var open []models.Position
	for _, p := range m.positions {
		if p.Status == models.StatusOpen {
			open = append(open, p)
		}
	}
	sortByEntryDesc(open)
	return open, nil
}

// UpdatePosition replaces the stored record with the given one.
func (m *MockStorage) UpdatePosition(_ context.Context, pos *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.forcedErr != nil {
		return m.forcedErr
	}
	if pos == nil {
		return fmt.Errorf("no position to update")
	}
	if err := pos.Validate(); err != nil {
		return err
	}
	i := m.findLocked(pos.ID)
	if i < 0 {
		return fmt.Errorf("position %s: %w", pos.ID, ErrPositionNotFound)
	}
	m.positions[i] = *pos
	return nil
}

// ClosePosition transitions an open position to closed.
func (m *MockStorage) ClosePosition(_ context.Context, id string, exitValue float64, reason string) (models.CloseSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.forcedErr != nil {
		return models.CloseSummary{}, m.forcedErr
	}
	i := m.findLocked(id)
	if i < 0 {
		return models.CloseSummary{}, fmt.Errorf("position %s: %w", id, ErrPositionNotFound)
	}
	return m.positions[i].Close(exitValue, reason, time.Now().UTC())
}

// AddScanRecord appends a scan outcome.
func (m *MockStorage) AddScanRecord(_ context.Context, rec *models.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.forcedErr != nil {
		return m.forcedErr
	}
	if rec == nil {
		return fmt.Errorf("no scan record to add")
	}
	m.scans = append(m.scans, *rec)
	return nil
}

// GetRecentScans returns up to limit scan records, newest first.
func (m *MockStorage) GetRecentScans(_ context.Context, limit int) ([]models.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	n := len(m.scans)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.ScanRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.scans[i])
	}
	return out, nil
}

// GetHistory returns copies of all closed positions, newest exit first.
func (m *MockStorage) GetHistory(_ context.Context) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	var closed []models.Position
	for _, p := range m.positions {
		if p.Status == models.StatusClosed {
			closed = append(closed, p)
		}
	}
	sortByExitDesc(closed)
	return closed, nil
}

// GetStatistics derives the summary from the stored positions.
func (m *MockStorage) GetStatistics(_ context.Context) (*Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	return buildStatistics(m.positions), nil
}

// Close is a no-op.
func (m *MockStorage) Close() error {
	return nil
}
