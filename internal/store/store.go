// Package store defines the persistence interface for the backtest
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/stratlab/backtest-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of
// truth; Redis provides a read-through cache layer.
type Store interface {
	// --- Historical bars ---

	// SaveBars upserts daily bars for a symbol. Re-ingesting a date
	// replaces the existing bar.
	SaveBars(ctx context.Context, symbol string, bars []model.Bar) error

	// Bars returns a symbol's bars ascending by date, bounded by
	// [start, end]. A zero start or end leaves that side unbounded.
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error)

	// --- Run summaries ---

	// SaveRun persists a finished run's summary and metrics.
	SaveRun(ctx context.Context, rec *model.RunRecord) error

	// GetRun retrieves a run summary by ID.
	GetRun(ctx context.Context, runID string) (*model.RunRecord, error)

	// ListRuns returns the most recent run summaries, newest first.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)

	// --- Immutable trade ledger ---

	// InsertTrades appends simulated fills. Trades are never modified
	// or deleted.
	InsertTrades(ctx context.Context, trades []model.Trade) error

	// GetTradesByRun returns a run's fills in execution order.
	GetTradesByRun(ctx context.Context, runID string) ([]model.Trade, error)
}
