package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratlab/backtest-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary store; reads check Redis
// first then fall back to the primary. Run summaries and trade ledgers
// are immutable once written, so they are cached on first read without
// invalidation. Bar caches carry a per-symbol version that SaveBars
// bumps, which orphans stale range entries until their TTL expires.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Bars ---

func (s *CachedStore) SaveBars(ctx context.Context, symbol string, bars []model.Bar) error {
	if err := s.primary.SaveBars(ctx, symbol, bars); err != nil {
		return err
	}
	// Bump the symbol version; outstanding range caches become unreachable.
	s.rdb.Incr(ctx, barsVersionKey(symbol))
	return nil
}

func (s *CachedStore) Bars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	ver, err := s.rdb.Get(ctx, barsVersionKey(symbol)).Int64()
	if err != nil {
		ver = 0
	}
	key := barsKey(symbol, ver, start, end)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var bars []model.Bar
		if json.Unmarshal(data, &bars) == nil {
			return bars, nil
		}
	}

	// Cache miss: read from primary.
	bars, err := s.primary.Bars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(bars); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return bars, nil
}

// --- Run summaries ---

func (s *CachedStore) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	if err := s.primary.SaveRun(ctx, rec); err != nil {
		return err
	}
	s.cacheRun(ctx, rec)
	return nil
}

func (s *CachedStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	data, err := s.rdb.Get(ctx, runKey(runID)).Bytes()
	if err == nil {
		var rec model.RunRecord
		if json.Unmarshal(data, &rec) == nil {
			return &rec, nil
		}
	}

	rec, err := s.primary.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	s.cacheRun(ctx, rec)
	return rec, nil
}

// --- Trade ledger ---

func (s *CachedStore) InsertTrades(ctx context.Context, trades []model.Trade) error {
	return s.primary.InsertTrades(ctx, trades)
}

func (s *CachedStore) GetTradesByRun(ctx context.Context, runID string) ([]model.Trade, error) {
	data, err := s.rdb.Get(ctx, tradesKey(runID)).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	trades, err := s.primary.GetTradesByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, tradesKey(runID), data, s.ttl)
	}
	return trades, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	return s.primary.ListRuns(ctx, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cacheRun(ctx context.Context, rec *model.RunRecord) {
	if data, err := json.Marshal(rec); err == nil {
		s.rdb.Set(ctx, runKey(rec.RunID), data, s.ttl)
	}
}

func barsVersionKey(symbol string) string { return fmt.Sprintf("barsver:%s", symbol) }
func runKey(id string) string             { return fmt.Sprintf("run:%s", id) }
func tradesKey(id string) string          { return fmt.Sprintf("trades:%s", id) }

func barsKey(symbol string, ver int64, start, end time.Time) string {
	fmtDate := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format(time.DateOnly)
	}
	return fmt.Sprintf("bars:%d:%s:%s:%s", ver, symbol, fmtDate(start), fmtDate(end))
}
