// Package history records runs and their likelihood traces in SQLite.
//
// Store implements plsago.Observer; attach it with plsago.WithObserver on the
// coordinator:
//
//	h, err := history.Open(ctx, "runs.db")
//	defer h.Close()
//	res, err := plsago.RunLocal(ctx, cfg, co, 4, plsago.WithObserver(h))
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/plsago"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("history: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	clusters INTEGER NOT NULL,
	max_iterations INTEGER NOT NULL,
	seed INTEGER NOT NULL,
	workers INTEGER NOT NULL,
	terms_a INTEGER NOT NULL,
	terms_b INTEGER NOT NULL,
	nonzeros INTEGER NOT NULL,
	state TEXT NOT NULL,
	iterations INTEGER,
	initial_ll REAL,
	final_ll REAL,
	numeric_faults INTEGER,
	total_seconds REAL
);

CREATE TABLE IF NOT EXISTS iterations (
	run_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	log_likelihood REAL NOT NULL,
	change REAL,
	state TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	PRIMARY KEY(run_id, iteration),
	FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
`

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

var _ plsago.Observer = (*Store)(nil)

// Open opens or creates the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the coordinator reports sequentially.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

// Fixed width so that timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func now() string { return time.Now().UTC().Format(timeLayout) }

// OnStart implements plsago.Observer.
func (s *Store) OnStart(ctx context.Context, info plsago.RunInfo) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, started_at, clusters, max_iterations, seed, workers, terms_a, terms_b, nonzeros, state)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.RunID, now(), info.Config.NumClusters, info.Config.MaxIterations, int64(info.Seed),
		info.Workers, info.TermsA, info.TermsB, info.NonZeros, plsago.StateRunning.String())
	if err != nil {
		return fmt.Errorf("history: record run %s: %w", info.RunID, err)
	}
	return nil
}

// OnIteration implements plsago.Observer.
func (s *Store) OnIteration(ctx context.Context, info plsago.IterationInfo) error {
	change := nullable(info.Change)
	if info.Iteration == 0 {
		change = sql.NullFloat64{}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO iterations (run_id, iteration, log_likelihood, change, state, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		info.RunID, info.Iteration, info.LogLikelihood, change, info.State.String(), now())
	if err != nil {
		return fmt.Errorf("history: record iteration %d: %w", info.Iteration, err)
	}
	return nil
}

// OnFinish implements plsago.Observer.
func (s *Store) OnFinish(ctx context.Context, r *plsago.Result) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE runs SET finished_at = ?, state = ?, iterations = ?, initial_ll = ?, final_ll = ?,
	numeric_faults = ?, total_seconds = ?
WHERE run_id = ?`,
		now(), r.State.String(), r.Iterations, nullable(r.InitialLogLikelihood), nullable(r.FinalLogLikelihood),
		int64(r.NumericFaults), r.Timings.Total.Seconds(), r.RunID)
	if err != nil {
		return fmt.Errorf("history: finish run %s: %w", r.RunID, err)
	}
	return nil
}

// Run is a recorded run.
type Run struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Clusters      uint32
	MaxIterations uint32
	Seed          uint64
	Workers       int
	TermsA        uint32
	TermsB        uint32
	NonZeros      int
	State         string
	Iterations    uint32
	InitialLL     float64
	FinalLL       float64
	NumericFaults uint64
}

// Iteration is a recorded iteration.
type Iteration struct {
	Iteration     uint32
	LogLikelihood float64
	// Change is NaN for the baseline iteration.
	Change float64
	State  string
}

const runColumns = `run_id, started_at, finished_at, clusters, max_iterations, seed, workers,
	terms_a, terms_b, nonzeros, state, iterations, initial_ll, final_ll, numeric_faults`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                  Run
		started            string
		finished           sql.NullString
		seed               int64
		iterations, faults sql.NullInt64
		initialLL, finalLL sql.NullFloat64
	)
	err := sc.Scan(&r.RunID, &started, &finished, &r.Clusters, &r.MaxIterations, &seed, &r.Workers,
		&r.TermsA, &r.TermsB, &r.NonZeros, &r.State, &iterations, &initialLL, &finalLL, &faults)
	if err != nil {
		return r, err
	}
	r.Seed = uint64(seed)
	r.StartedAt, _ = time.Parse(timeLayout, started)
	if finished.Valid {
		r.FinishedAt, _ = time.Parse(timeLayout, finished.String)
	}
	r.Iterations = uint32(iterations.Int64)
	r.NumericFaults = uint64(faults.Int64)
	r.InitialLL = initialLL.Float64
	r.FinalLL = finalLL.Float64
	return r, nil
}

// Run returns the run with the given id.
func (s *Store) Run(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Iterations returns the likelihood trace of a run in iteration order.
func (s *Store) Iterations(ctx context.Context, runID string) ([]Iteration, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT iteration, log_likelihood, change, state FROM iterations WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Iteration
	for rows.Next() {
		var (
			it     Iteration
			change sql.NullFloat64
		)
		if err := rows.Scan(&it.Iteration, &it.LogLikelihood, &change, &it.State); err != nil {
			return nil, err
		}
		it.Change = math.NaN()
		if change.Valid {
			it.Change = change.Float64
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Delete removes a run and its iterations.
func (s *Store) Delete(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}
