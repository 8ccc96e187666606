package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/seenimoa/trendbench/pkg/models"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded backtest invocation.
type Run struct {
	ID           string
	Strategy     string
	Benchmark    string
	Tickers      []string
	From, To     time.Time
	InitialCash  float64
	FinalValue   float64
	ArtifactPath string
	CreatedAt    time.Time
}

// RunStore records runs and their metric tables in a SQLite database.
type RunStore struct {
	db *sql.DB
}

// migrations are applied in order; the schema version is their count.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		strategy      TEXT NOT NULL,
		benchmark     TEXT NOT NULL,
		tickers       TEXT NOT NULL,
		from_date     TEXT NOT NULL,
		to_date       TEXT NOT NULL,
		initial_cash  REAL NOT NULL,
		final_value   REAL NOT NULL,
		artifact_path TEXT NOT NULL,
		created_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS metric_cells (
		run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		metric   TEXT NOT NULL,
		tbl_pos  INTEGER NOT NULL,
		series   TEXT NOT NULL,
		row_pos  INTEGER NOT NULL,
		horizon  TEXT NOT NULL,
		col_pos  INTEGER NOT NULL,
		value    REAL,
		PRIMARY KEY (run_id, tbl_pos, row_pos, col_pos)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
	`CREATE TABLE IF NOT EXISTS metric_tables (
		run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		tbl_pos INTEGER NOT NULL,
		metric  TEXT NOT NULL,
		PRIMARY KEY (run_id, tbl_pos)
	)`,
}

// OpenRunStore opens (or creates) the SQLite database at path and brings
// its schema up to date.
func OpenRunStore(ctx context.Context, path string) (*RunStore, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	s := &RunStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

func (s *RunStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}
	var version int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := s.db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// SaveRun inserts run and its metric tables in one transaction. NaN cells
// are stored as NULL.
func (s *RunStore) SaveRun(ctx context.Context, run Run, tables []*models.MetricTable) error {
	if run.ID == "" {
		return fmt.Errorf("%w: run has no ID", models.ErrConfig)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	tickers, err := encodeTickers(run.Tickers)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, strategy, benchmark, tickers, from_date, to_date, initial_cash, final_value, artifact_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Benchmark, tickers,
		run.From.Format(models.DateLayout), run.To.Format(models.DateLayout),
		run.InitialCash, run.FinalValue, run.ArtifactPath,
		run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	tblStmt, err := tx.PrepareContext(ctx, `INSERT INTO metric_tables (run_id, tbl_pos, metric) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tblStmt.Close()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO metric_cells
		(run_id, metric, tbl_pos, series, row_pos, horizon, col_pos, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for t, table := range tables {
		if _, err := tblStmt.ExecContext(ctx, run.ID, t, table.Metric); err != nil {
			return fmt.Errorf("inserting %s table: %w", table.Metric, err)
		}
		for r, series := range table.Rows {
			for c, horizon := range table.Columns {
				var value sql.NullFloat64
				if v := table.Cells[r][c]; !math.IsNaN(v) {
					value = sql.NullFloat64{Float64: v, Valid: true}
				}
				if _, err := stmt.ExecContext(ctx, run.ID, table.Metric, t, series, r, horizon, c, value); err != nil {
					return fmt.Errorf("inserting %s cell: %w", table.Metric, err)
				}
			}
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first. A limit <= 0 returns
// every run.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, strategy, benchmark, tickers, from_date, to_date,
		initial_cash, final_value, artifact_path, created_at
		FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID.
func (s *RunStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, strategy, benchmark, tickers, from_date, to_date,
		initial_cash, final_value, artifact_path, created_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// LoadTables returns the metric tables recorded for a run, in the order
// they were saved. NULL cells read back as NaN; a table saved without
// cells comes back empty.
func (s *RunStore) LoadTables(ctx context.Context, runID string) ([]*models.MetricTable, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	var (
		tables []*models.MetricTable
		byPos  = map[int]*models.MetricTable{}
	)
	tblRows, err := s.db.QueryContext(ctx, `SELECT tbl_pos, metric FROM metric_tables
		WHERE run_id = ? ORDER BY tbl_pos`, runID)
	if err != nil {
		return nil, err
	}
	for tblRows.Next() {
		var (
			pos    int
			metric string
		)
		if err := tblRows.Scan(&pos, &metric); err != nil {
			tblRows.Close()
			return nil, err
		}
		t := &models.MetricTable{Metric: metric}
		byPos[pos] = t
		tables = append(tables, t)
	}
	if err := tblRows.Err(); err != nil {
		tblRows.Close()
		return nil, err
	}
	if err := tblRows.Close(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT metric, tbl_pos, series, row_pos, horizon, col_pos, value
		FROM metric_cells WHERE run_id = ?
		ORDER BY tbl_pos, row_pos, col_pos`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			metric, series, horizon string
			tblPos, rowPos, colPos  int
			value                   sql.NullFloat64
		)
		if err := rows.Scan(&metric, &tblPos, &series, &rowPos, &horizon, &colPos, &value); err != nil {
			return nil, err
		}
		t, ok := byPos[tblPos]
		if !ok {
			t = &models.MetricTable{Metric: metric}
			byPos[tblPos] = t
			tables = append(tables, t)
		}
		for len(t.Rows) <= rowPos {
			t.Rows = append(t.Rows, "")
			t.Cells = append(t.Cells, nil)
		}
		t.Rows[rowPos] = series
		for len(t.Columns) <= colPos {
			t.Columns = append(t.Columns, "")
		}
		t.Columns[colPos] = horizon
		for len(t.Cells[rowPos]) <= colPos {
			t.Cells[rowPos] = append(t.Cells[rowPos], math.NaN())
		}
		if value.Valid {
			t.Cells[rowPos][colPos] = value.Float64
		}
	}
	return tables, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run                    Run
		tickers, from, to, ctd string
	)
	if err := sc.Scan(&run.ID, &run.Strategy, &run.Benchmark, &tickers, &from, &to,
		&run.InitialCash, &run.FinalValue, &run.ArtifactPath, &ctd); err != nil {
		return Run{}, err
	}
	var err error
	if run.Tickers, err = decodeTickers(tickers); err != nil {
		return Run{}, err
	}
	if run.From, err = time.Parse(models.DateLayout, from); err != nil {
		return Run{}, fmt.Errorf("run %s from_date: %w", run.ID, err)
	}
	if run.To, err = time.Parse(models.DateLayout, to); err != nil {
		return Run{}, fmt.Errorf("run %s to_date: %w", run.ID, err)
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, ctd); err != nil {
		return Run{}, fmt.Errorf("run %s created_at: %w", run.ID, err)
	}
	return run, nil
}

func encodeTickers(tickers []string) (string, error) {
	if tickers == nil {
		tickers = []string{}
	}
	b, err := json.Marshal(tickers)
	if err != nil {
		return "", fmt.Errorf("encoding tickers: %w", err)
	}
	return string(b), nil
}

func decodeTickers(s string) ([]string, error) {
	var tickers []string
	if err := json.Unmarshal([]byte(s), &tickers); err != nil {
		return nil, fmt.Errorf("decoding tickers: %w", err)
	}
	return tickers, nil
}
