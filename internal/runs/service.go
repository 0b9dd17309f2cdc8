// Package runs provides the HTTP handlers and business logic for
// launching backtest runs, ingesting historical bars, and querying
// persisted results.
package runs

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stratlab/backtest-engine/internal/backtest"
	"github.com/stratlab/backtest-engine/internal/evaluate"
	"github.com/stratlab/backtest-engine/internal/metrics"
	"github.com/stratlab/backtest-engine/internal/model"
	"github.com/stratlab/backtest-engine/internal/store"
	"github.com/stratlab/backtest-engine/internal/strategy"
)

const defaultInitialCash = 100_000

// Service handles run operations. Concurrent simulations are bounded
// by a semaphore; requests beyond the bound are rejected rather than
// queued.
type Service struct {
	store  store.Store
	engine *backtest.Engine
	wsHub  *WSHub // optional WebSocket hub for run-event broadcasts
	sem    chan struct{}
}

// NewService creates a new runs service. maxConcurrent bounds the
// number of simulations executing at once. Pass nil for hub if
// WebSocket broadcasting is not needed.
func NewService(st store.Store, engine *backtest.Engine, hub *WSHub, maxConcurrent int) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		store:  st,
		engine: engine,
		wsHub:  hub,
		sem:    make(chan struct{}, maxConcurrent),
	}
}

// --- Request/Response types ---

// BacktestRequest is the JSON body for POST /api/v1/backtests. Dates
// use YYYY-MM-DD; zero values leave the window unbounded. Preset, when
// set, supplies the strategy, parameters, and share cap; explicit
// fields override it.
type BacktestRequest struct {
	Symbols         []string        `json:"symbols"`
	Strategy        string          `json:"strategy"`
	Params          strategy.Params `json:"params"`
	StartDate       string          `json:"start_date"`
	EndDate         string          `json:"end_date"`
	InitialCash     float64         `json:"initial_cash"`
	MaxPositionSize int64           `json:"max_position_size"`
	Preset          string          `json:"preset"`
}

// BacktestResponse is the JSON body returned from POST /api/v1/backtests.
type BacktestResponse struct {
	Run     *model.RunResult `json:"run"`
	Metrics model.Metrics    `json:"metrics"`
}

// --- HTTP Handlers ---

// RunBacktest handles POST /api/v1/backtests. The simulation runs
// synchronously inside the request; the response carries the full
// result plus its evaluated metrics.
func (s *Service) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Symbols) == 0 {
		writeError(w, "symbols is required", http.StatusBadRequest)
		return
	}

	spec, err := s.buildSpec(req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		metrics.RunsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		writeError(w, "too many concurrent runs", http.StatusServiceUnavailable)
		return
	}

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()
	start := time.Now()

	result, err := s.engine.Run(r.Context(), spec)
	metrics.RunDuration.WithLabelValues(string(spec.Strategy)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RunsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		switch {
		case errors.Is(err, backtest.ErrNoData):
			writeError(w, "no historical data for requested symbols", http.StatusUnprocessableEntity)
		case errors.Is(err, backtest.ErrInvalidSpec), errors.Is(err, backtest.ErrDuplicateBar):
			writeError(w, err.Error(), http.StatusBadRequest)
		default:
			writeError(w, "backtest failed", http.StatusInternalServerError)
		}
		return
	}
	metrics.RunsTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()

	m := evaluate.Evaluate(result)

	ctx := r.Context()
	if err := s.store.SaveRun(ctx, recordOf(result, m)); err != nil {
		slog.Error("failed to persist run", "run_id", result.RunID, "err", err)
		writeError(w, "failed to persist run", http.StatusInternalServerError)
		return
	}
	if err := s.store.InsertTrades(ctx, result.Trades); err != nil {
		slog.Error("failed to persist trades", "run_id", result.RunID, "err", err)
		writeError(w, "failed to persist trades", http.StatusInternalServerError)
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "run_completed",
			RunID:       result.RunID,
			TotalReturn: result.TotalReturn,
			NumTrades:   result.NumTrades,
		})
	}

	slog.Info("backtest completed",
		"run_id", result.RunID,
		"strategy", result.Strategy,
		"symbols", result.Symbols,
		"total_return_pct", result.TotalReturn,
		"num_trades", result.NumTrades,
		"score", m.Score,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(BacktestResponse{Run: result, Metrics: m})
}

// ListRuns handles GET /api/v1/runs
func (s *Service) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// GetRun handles GET /api/v1/runs/{runID}
func (s *Service) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	rec, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// GetRunMetrics handles GET /api/v1/runs/{runID}/metrics
func (s *Service) GetRunMetrics(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	rec, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec.Metrics)
}

// GetRunTrades handles GET /api/v1/runs/{runID}/trades
func (s *Service) GetRunTrades(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		writeError(w, "run not found", http.StatusNotFound)
		return
	}

	trades, err := s.store.GetTradesByRun(r.Context(), runID)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// IngestBars handles POST /api/v1/bars/{symbol}. The body is a JSON
// array of bars; re-ingested dates replace existing bars.
func (s *Service) IngestBars(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var bars []model.Bar
	if err := json.NewDecoder(r.Body).Decode(&bars); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(bars) == 0 {
		writeError(w, "at least one bar is required", http.StatusBadRequest)
		return
	}
	for i, b := range bars {
		if b.Time.IsZero() {
			writeError(w, "bar time is required", http.StatusBadRequest)
			return
		}
		if b.Close <= 0 || b.High < b.Low {
			writeError(w, "bar prices are invalid", http.StatusBadRequest)
			return
		}
		// Daily bars are keyed by calendar date. Strip intraday time
		// and zone so range queries and re-ingest replacement line up.
		tm := b.Time.UTC()
		bars[i].Time = time.Date(tm.Year(), tm.Month(), tm.Day(), 0, 0, 0, 0, time.UTC)
	}

	if err := s.store.SaveBars(r.Context(), symbol, bars); err != nil {
		writeError(w, "failed to save bars", http.StatusInternalServerError)
		return
	}
	metrics.BarsIngested.WithLabelValues(symbol).Add(float64(len(bars)))

	slog.Info("bars ingested", "symbol", symbol, "count", len(bars))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"symbol": symbol, "count": len(bars)})
}

// GetPresets handles GET /api/v1/presets
func (s *Service) GetPresets(w http.ResponseWriter, r *http.Request) {
	names := strategy.PresetNames()
	presets := make(map[string]strategy.PresetMode, len(names))
	for _, name := range names {
		p, err := strategy.Preset(name)
		if err != nil {
			continue
		}
		presets[name] = p
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(presets)
}

// --- Internals ---

// buildSpec validates a request into an engine RunSpec, applying preset
// and default values.
func (s *Service) buildSpec(req BacktestRequest) (backtest.RunSpec, error) {
	spec := backtest.RunSpec{
		Symbols:     req.Symbols,
		Params:      req.Params,
		InitialCash: req.InitialCash,
		MaxShares:   req.MaxPositionSize,
	}

	if req.Preset != "" {
		preset, err := strategy.Preset(req.Preset)
		if err != nil {
			return backtest.RunSpec{}, err
		}
		spec.Strategy = preset.Type
		if req.Strategy == "" {
			spec.Params = preset.Params
		}
		if spec.MaxShares == 0 {
			spec.MaxShares = preset.MaxPositionSize
		}
	}

	if req.Strategy != "" || req.Preset == "" {
		t, err := strategy.ParseType(req.Strategy)
		if err != nil {
			return backtest.RunSpec{}, err
		}
		spec.Strategy = t
	}

	if req.StartDate != "" {
		t, err := time.Parse(time.DateOnly, req.StartDate)
		if err != nil {
			return backtest.RunSpec{}, errors.New("start_date must be YYYY-MM-DD")
		}
		spec.StartDate = t
	}
	if req.EndDate != "" {
		t, err := time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			return backtest.RunSpec{}, errors.New("end_date must be YYYY-MM-DD")
		}
		spec.EndDate = t
	}
	if !spec.StartDate.IsZero() && !spec.EndDate.IsZero() && spec.EndDate.Before(spec.StartDate) {
		return backtest.RunSpec{}, errors.New("end_date is before start_date")
	}

	if spec.InitialCash == 0 {
		spec.InitialCash = defaultInitialCash
	}
	if spec.InitialCash < 0 {
		return backtest.RunSpec{}, errors.New("initial_cash must be positive")
	}

	return spec, nil
}

// recordOf collapses a full result into its persisted summary.
func recordOf(r *model.RunResult, m model.Metrics) *model.RunRecord {
	return &model.RunRecord{
		RunID:         r.RunID,
		Symbols:       r.Symbols,
		Strategy:      r.Strategy,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		InitialCash:   r.InitialCash,
		FinalValue:    r.FinalValue,
		TotalReturn:   r.TotalReturn,
		NumTrades:     r.NumTrades,
		BuyHoldReturn: r.BuyHoldReturn,
		Metrics:       m,
		CreatedAt:     r.CreatedAt,
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
