// Package api provides the HTTP server for trendbench.
//
// It exposes endpoints to run backtests, browse the run history and
// inspect the effective configuration.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seenimoa/trendbench/internal/config"
	"github.com/seenimoa/trendbench/internal/runner"
	"github.com/seenimoa/trendbench/internal/store"
	"github.com/seenimoa/trendbench/pkg/models"
	"github.com/seenimoa/trendbench/pkg/utils"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Server is the HTTP API server.
type Server struct {
	router     chi.Router
	cfg        *config.Config
	log        *slog.Logger
	runnerOpts []runner.Option
}

// NewServer creates a configured API server with all routes and middleware.
// opts are passed to every runner the server builds. A nil logger uses
// slog.Default().
func NewServer(cfg *config.Config, logger *slog.Logger, opts ...runner.Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", models.ErrConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		cfg:        cfg,
		log:        logger,
		runnerOpts: append([]runner.Option{runner.WithLogger(logger)}, opts...),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Info("shutting down api server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Backtests
		r.Post("/backtest", s.handleBacktest)
		r.Get("/strategies", s.handleStrategies)

		// Run history
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)

		// Configuration
		r.Get("/config", s.handleGetConfig)
	})

	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			l.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// BacktestRequest is the body for POST /api/v1/backtest. Zero fields keep
// the server's configured value.
type BacktestRequest struct {
	Strategy       string   `json:"strategy,omitempty"`
	Tickers        []string `json:"tickers,omitempty"`
	Benchmark      string   `json:"benchmark,omitempty"`
	From           string   `json:"from,omitempty"` // YYYY-MM-DD
	To             string   `json:"to,omitempty"`   // YYYY-MM-DD, exclusive
	LookbackPeriod int      `json:"lookback_period,omitempty"`
	InitialCash    float64  `json:"initial_cash,omitempty"`
	Record         *bool    `json:"record,omitempty"` // false skips the run store
}

// BacktestResponse is the result of one backtest.
type BacktestResponse struct {
	Run    RunInfo     `json:"run"`
	Saved  bool        `json:"saved"`
	Tables []TableJSON `json:"tables"`
}

// RunInfo describes a run in the history.
type RunInfo struct {
	ID           string    `json:"id"`
	Strategy     string    `json:"strategy"`
	Benchmark    string    `json:"benchmark"`
	Tickers      []string  `json:"tickers"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	InitialCash  float64   `json:"initial_cash"`
	FinalValue   float64   `json:"final_value"`
	TotalReturn  float64   `json:"total_return"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// RunDetail is a run with its metric tables.
type RunDetail struct {
	Run    RunInfo     `json:"run"`
	Tables []TableJSON `json:"tables"`
}

// TableJSON is a metric table with missing cells as null.
type TableJSON struct {
	Metric  string       `json:"metric"`
	Rows    []string     `json:"rows"`
	Columns []string     `json:"columns"`
	Cells   [][]*float64 `json:"cells"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":  "ok",
			"version": Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := s.requestConfig(req)
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := runner.New(cfg, s.runnerOpts...)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	out, err := run.Run(ctx)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	sum := out.Summary()
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: BacktestResponse{
			Run: RunInfo{
				ID:           sum.RunID,
				Strategy:     sum.Strategy,
				Benchmark:    sum.Benchmark,
				Tickers:      sum.Tickers,
				From:         utils.FormatDate(sum.From),
				To:           utils.FormatDate(sum.To),
				InitialCash:  sum.InitialCash,
				FinalValue:   sum.FinalValue,
				TotalReturn:  sum.TotalReturn(),
				ArtifactPath: cfg.Output.AlignedReturnsPath,
			},
			Saved:  out.Saved,
			Tables: tablesJSON(out.Tables),
		},
	})
}

// requestConfig copies the server configuration and applies req on top.
func (s *Server) requestConfig(req BacktestRequest) *config.Config {
	cfg := *s.cfg
	cfg.Data.Tickers = append([]string(nil), s.cfg.Data.Tickers...)

	if req.Strategy != "" {
		cfg.Strategy.Name = req.Strategy
	}
	if len(req.Tickers) > 0 {
		cfg.Data.Universe = config.UniverseCustom
		cfg.Data.Tickers = utils.NormalizeTickers(req.Tickers)
	}
	if req.Benchmark != "" {
		cfg.Data.Benchmark = utils.NormalizeTicker(req.Benchmark)
		cfg.Data.BenchmarkFile = ""
	}
	if req.From != "" {
		cfg.Data.StartDate = req.From
	}
	if req.To != "" {
		cfg.Data.EndDate = req.To
	}
	if req.LookbackPeriod > 0 {
		cfg.Strategy.LookbackPeriod = req.LookbackPeriod
	}
	if req.InitialCash > 0 {
		cfg.Backtest.InitialCash = req.InitialCash
	}
	if req.Record != nil && !*req.Record {
		cfg.Output.RunDB = ""
	}
	return &cfg
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.openRuns(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	defer runs.Close()

	list, err := runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	infos := make([]RunInfo, len(list))
	for i, run := range list {
		infos[i] = runInfo(run)
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: infos})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	runs, err := s.openRuns(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	defer runs.Close()

	run, err := runs.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	tables, err := runs.LoadTables(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    RunDetail{Run: runInfo(run), Tables: tablesJSON(tables)},
	})
}

// errHistoryDisabled is returned when output.run_db is empty.
var errHistoryDisabled = errors.New("run history is disabled (output.run_db is empty)")

func (s *Server) openRuns(ctx context.Context) (*store.RunStore, error) {
	if s.cfg.Output.RunDB == "" {
		return nil, errHistoryDisabled
	}
	return store.OpenRunStore(ctx, s.cfg.Output.RunDB)
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrConfig), errors.Is(err, models.ErrIndexType):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrRunNotFound), errors.Is(err, errHistoryDisabled):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func runInfo(run store.Run) RunInfo {
	info := RunInfo{
		ID:           run.ID,
		Strategy:     run.Strategy,
		Benchmark:    run.Benchmark,
		Tickers:      run.Tickers,
		From:         utils.FormatDate(run.From),
		To:           utils.FormatDate(run.To),
		InitialCash:  run.InitialCash,
		FinalValue:   run.FinalValue,
		ArtifactPath: run.ArtifactPath,
		CreatedAt:    run.CreatedAt,
	}
	if run.InitialCash != 0 {
		info.TotalReturn = run.FinalValue/run.InitialCash - 1
	}
	return info
}

func tablesJSON(tables []*models.MetricTable) []TableJSON {
	out := make([]TableJSON, 0, len(tables))
	for _, t := range tables {
		cells := make([][]*float64, len(t.Cells))
		for i, row := range t.Cells {
			cells[i] = make([]*float64, len(row))
			for j, v := range row {
				v := v
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					cells[i][j] = &v
				}
			}
		}
		out = append(out, TableJSON{
			Metric:  t.Metric,
			Rows:    t.Rows,
			Columns: t.Columns,
			Cells:   cells,
		})
	}
	return out
}
