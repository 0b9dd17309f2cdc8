package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stratlab/backtest-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	bars   map[string][]model.Bar
	runs   map[string]*model.RunRecord
	ledger []model.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bars: make(map[string][]model.Bar),
		runs: make(map[string]*model.RunRecord),
	}
}

func (s *MemoryStore) SaveBars(_ context.Context, symbol string, bars []model.Bar) error {
	if symbol == "" {
		return fmt.Errorf("store: empty symbol")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byDate := make(map[time.Time]model.Bar, len(s.bars[symbol])+len(bars))
	for _, b := range s.bars[symbol] {
		byDate[b.Time] = b
	}
	for _, b := range bars {
		b.Symbol = symbol
		byDate[b.Time] = b
	}

	merged := make([]model.Bar, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Time.Before(merged[j].Time) })
	s.bars[symbol] = merged
	return nil
}

func (s *MemoryStore) Bars(_ context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bar
	for _, b := range s.bars[symbol] {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && b.Time.After(end) {
			continue
		}
		result = append(result, b)
	}
	return result, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, rec *model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *rec
	cp.Symbols = append([]string(nil), rec.Symbols...)
	s.runs[rec.RunID] = &cp
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	cp := *rec
	cp.Symbols = append([]string(nil), rec.Symbols...)
	return &cp, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		runs = append(runs, *rec)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) InsertTrades(_ context.Context, trades []model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, trades...)
	return nil
}

func (s *MemoryStore) GetTradesByRun(_ context.Context, runID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, tr := range s.ledger {
		if tr.RunID == runID {
			result = append(result, tr)
		}
	}
	return result, nil
}
