package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. Monetary values are stored as NUMERIC for exact decimal
// precision; run metrics are a JSONB document.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveBars(ctx context.Context, symbol string, bars []model.Bar) error {
	for _, b := range bars {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO bars (symbol, time, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (symbol, time) DO UPDATE
			 SET open = EXCLUDED.open, high = EXCLUDED.high,
			     low = EXCLUDED.low, close = EXCLUDED.close,
			     volume = EXCLUDED.volume`,
			symbol, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("save bar %s %s: %w", symbol, b.Time.Format(time.DateOnly), err)
		}
	}
	return nil
}

func (s *PostgresStore) Bars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, time, open, high, low, close, volume
		 FROM bars
		 WHERE symbol = $1
		   AND ($2::TIMESTAMPTZ IS NULL OR time >= $2)
		   AND ($3::TIMESTAMPTZ IS NULL OR time <= $3)
		 ORDER BY time`,
		symbol, nullableTime(start), nullableTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.Symbol, &b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

func (s *PostgresStore) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics for run %s: %w", rec.RunID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (run_id, symbols, strategy, start_date, end_date,
		                   initial_cash, final_value, total_return, num_trades,
		                   buy_hold_return, metrics, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11, $12)`,
		rec.RunID, rec.Symbols, rec.Strategy, rec.StartDate, rec.EndDate,
		rec.InitialCash.String(), rec.FinalValue.String(),
		rec.TotalReturn, rec.NumTrades, rec.BuyHoldReturn,
		metrics, rec.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	var rec model.RunRecord
	var initialCash, finalValue string
	var metrics []byte

	err := s.pool.QueryRow(ctx,
		`SELECT run_id, symbols, strategy, start_date, end_date,
		        initial_cash::TEXT, final_value::TEXT,
		        total_return, num_trades, buy_hold_return, metrics, created_at
		 FROM runs WHERE run_id = $1`, runID).
		Scan(&rec.RunID, &rec.Symbols, &rec.Strategy, &rec.StartDate, &rec.EndDate,
			&initialCash, &finalValue,
			&rec.TotalReturn, &rec.NumTrades, &rec.BuyHoldReturn, &metrics, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	rec.InitialCash, _ = decimal.NewFromString(initialCash)
	rec.FinalValue, _ = decimal.NewFromString(finalValue)
	if err := json.Unmarshal(metrics, &rec.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics for run %s: %w", runID, err)
	}
	return &rec, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, symbols, strategy, start_date, end_date,
		        initial_cash::TEXT, final_value::TEXT,
		        total_return, num_trades, buy_hold_return, metrics, created_at
		 FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var rec model.RunRecord
		var initialCash, finalValue string
		var metrics []byte
		if err := rows.Scan(&rec.RunID, &rec.Symbols, &rec.Strategy, &rec.StartDate, &rec.EndDate,
			&initialCash, &finalValue,
			&rec.TotalReturn, &rec.NumTrades, &rec.BuyHoldReturn, &metrics, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.InitialCash, _ = decimal.NewFromString(initialCash)
		rec.FinalValue, _ = decimal.NewFromString(finalValue)
		if err := json.Unmarshal(metrics, &rec.Metrics); err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) InsertTrades(ctx context.Context, trades []model.Trade) error {
	for _, tr := range trades {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO trades (id, run_id, time, symbol, action, quantity, price, reason)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8)`,
			tr.ID, tr.RunID, tr.Time, tr.Symbol, tr.Action,
			tr.Quantity, tr.Price.String(), tr.Reason,
		)
		if err != nil {
			return fmt.Errorf("insert trade %s: %w", tr.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetTradesByRun(ctx context.Context, runID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, time, symbol, action, quantity, price::TEXT, reason
		 FROM trades WHERE run_id = $1 ORDER BY time, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrades reads pgx rows into Trade slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTrades(rows pgxRows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		var tr model.Trade
		var priceS string

		if err := rows.Scan(&tr.ID, &tr.RunID, &tr.Time, &tr.Symbol, &tr.Action,
			&tr.Quantity, &priceS, &tr.Reason); err != nil {
			return nil, err
		}

		tr.Price, _ = decimal.NewFromString(priceS)
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
