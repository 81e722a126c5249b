// Package store keeps a history of solve runs in SQLite.
//
// Each run records its summary statistics, the network conditions reported
// by its final pass and the corrected demand of every leaf, so results can
// be compared across edits of a network.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/pipeline"
)

// DefaultLimit is the number of runs List returns when no limit is given.
const DefaultLimit = 20

// Store wraps a SQLite connection holding run history.
type Store struct {
	conn *sqlx.DB
}

// Run is the summary of one solve.
type Run struct {
	ID              string
	Network         string
	NetworkHash     string
	CreatedAt       time.Time
	Iterations      int
	Converged       bool
	ErrorCount      int
	TrunkFlow       float64
	TrunkPressure   *float64
	MinLeafPressure *float64
	Duration        time.Duration
}

// RunError is a network condition reported by a run.
type RunError struct {
	Code      string `db:"code"`
	Component string `db:"component"`
	Message   string `db:"message"`
}

// LeafFlow is the corrected demand of a leaf at the end of a run.
type LeafFlow struct {
	Leaf string  `db:"leaf"`
	Flow float64 `db:"flow"`
}

type runRow struct {
	ID              string          `db:"id"`
	Network         string          `db:"network"`
	NetworkHash     string          `db:"network_hash"`
	CreatedAt       int64           `db:"created_at"`
	Iterations      int             `db:"iterations"`
	Converged       bool            `db:"converged"`
	ErrorCount      int             `db:"error_count"`
	TrunkFlow       float64         `db:"trunk_flow"`
	TrunkPressure   sql.NullFloat64 `db:"trunk_pressure"`
	MinLeafPressure sql.NullFloat64 `db:"min_leaf_pressure"`
	DurationMicros  int64           `db:"duration_us"`
}

// Open opens or creates a SQLite database at path. Use ":memory:" for a
// throwaway database.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps an
	// in-memory database alive across calls.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		network TEXT NOT NULL,
		network_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		converged INTEGER NOT NULL,
		error_count INTEGER NOT NULL,
		trunk_flow REAL NOT NULL,
		trunk_pressure REAL,
		min_leaf_pressure REAL,
		duration_us INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	CREATE TABLE IF NOT EXISTS run_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		code TEXT NOT NULL,
		component TEXT NOT NULL,
		message TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leaf_flows (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		leaf TEXT NOT NULL,
		flow REAL NOT NULL,
		PRIMARY KEY (run_id, leaf)
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// RecordResult stores a solve result for the named network.
// Re-recording a run that is already stored (a cache hit) is a no-op.
func (s *Store) RecordResult(ctx context.Context, network, networkHash string, res *pipeline.Result) error {
	run := Run{
		ID:              res.RunID,
		Network:         network,
		NetworkHash:     networkHash,
		CreatedAt:       time.Now(),
		Iterations:      res.Iterations,
		Converged:       res.Converged,
		ErrorCount:      len(res.Errors),
		TrunkFlow:       res.Stats.TrunkFlow,
		TrunkPressure:   res.Stats.TrunkPressure,
		MinLeafPressure: res.Stats.MinLeafPressure,
		Duration:        res.Stats.Duration,
	}
	errs := make([]RunError, len(res.Errors))
	for i, fe := range res.Errors {
		errs[i] = RunError{Code: string(fe.Code), Component: fe.ComponentID, Message: fe.Message}
	}
	leaves := make([]LeafFlow, len(res.Snapshot.Leaves))
	for i, l := range res.Snapshot.Leaves {
		leaves[i] = LeafFlow{Leaf: l.ID, Flow: l.Flow}
	}
	return s.Record(ctx, run, errs, leaves)
}

// Record stores a run with its errors and leaf flows in one transaction.
func (s *Store) Record(ctx context.Context, run Run, errs []RunError, leaves []LeafFlow) error {
	if run.ID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "run ID must not be empty")
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := toRow(run)
	res, err := tx.NamedExecContext(ctx, `INSERT OR IGNORE INTO runs
		(id, network, network_hash, created_at, iterations, converged, error_count,
		 trunk_flow, trunk_pressure, min_leaf_pressure, duration_us)
		VALUES (:id, :network, :network_hash, :created_at, :iterations, :converged, :error_count,
		 :trunk_flow, :trunk_pressure, :min_leaf_pressure, :duration_us)`, row)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for _, e := range errs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO run_errors (run_id, code, component, message) VALUES (?, ?, ?, ?)",
			run.ID, e.Code, e.Component, e.Message); err != nil {
			return fmt.Errorf("insert run error: %w", err)
		}
	}
	for _, l := range leaves {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO leaf_flows (run_id, leaf, flow) VALUES (?, ?, ?)",
			run.ID, l.Leaf, l.Flow); err != nil {
			return fmt.Errorf("insert leaf flow: %w", err)
		}
	}
	return tx.Commit()
}

// List returns the most recent runs, newest first. A non-empty network
// restricts the list to runs of that network. limit <= 0 means DefaultLimit.
func (s *Store) List(ctx context.Context, network string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var rows []runRow
	var err error
	if network == "" {
		err = s.conn.SelectContext(ctx, &rows,
			"SELECT * FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	} else {
		err = s.conn.SelectContext(ctx, &rows,
			"SELECT * FROM runs WHERE network = ? ORDER BY created_at DESC, rowid DESC LIMIT ?", network, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]Run, len(rows))
	for i, r := range rows {
		runs[i] = fromRow(r)
	}
	return runs, nil
}

// Get returns the run with the given ID.
// Returns an ErrCodeNotFound error if there is none.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var row runRow
	err := s.conn.GetContext(ctx, &row, "SELECT * FROM runs WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeNotFound, "no run %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run := fromRow(row)
	return &run, nil
}

// Find returns the run whose ID is id or starts with id. A prefix matching
// more than one run is an ErrCodeInvalidInput error.
func (s *Store) Find(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "run ID must not be empty")
	}
	if run, err := s.Get(ctx, id); err == nil || !errors.Is(err, errors.ErrCodeNotFound) {
		return run, err
	}

	var rows []runRow
	if err := s.conn.SelectContext(ctx, &rows,
		"SELECT * FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2", len(id), id); err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	switch len(rows) {
	case 0:
		return nil, errors.New(errors.ErrCodeNotFound, "no run %q", id)
	case 1:
		run := fromRow(rows[0])
		return &run, nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "run prefix %q is ambiguous", id)
	}
}

// Errors returns the network conditions recorded for a run.
func (s *Store) Errors(ctx context.Context, id string) ([]RunError, error) {
	var errs []RunError
	err := s.conn.SelectContext(ctx, &errs,
		"SELECT code, component, message FROM run_errors WHERE run_id = ? ORDER BY id", id)
	return errs, err
}

// LeafFlows returns the leaf demands recorded for a run, ordered by leaf ID.
func (s *Store) LeafFlows(ctx context.Context, id string) ([]LeafFlow, error) {
	var flows []LeafFlow
	err := s.conn.SelectContext(ctx, &flows,
		"SELECT leaf, flow FROM leaf_flows WHERE run_id = ? ORDER BY leaf", id)
	return flows, err
}

// Prune deletes all but the newest keep runs and returns how many were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "keep must not be negative")
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var ids []string
	if err := tx.SelectContext(ctx, &ids,
		"SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?", keep); err != nil {
		return 0, fmt.Errorf("select stale runs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	for _, q := range []string{
		"DELETE FROM run_errors WHERE run_id IN (?)",
		"DELETE FROM leaf_flows WHERE run_id IN (?)",
		"DELETE FROM runs WHERE id IN (?)",
	} {
		query, args, err := sqlx.In(q, ids)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return 0, fmt.Errorf("prune: %w", err)
		}
	}
	return len(ids), tx.Commit()
}

func toRow(r Run) runRow {
	row := runRow{
		ID:             r.ID,
		Network:        r.Network,
		NetworkHash:    r.NetworkHash,
		CreatedAt:      r.CreatedAt.UnixMicro(),
		Iterations:     r.Iterations,
		Converged:      r.Converged,
		ErrorCount:     r.ErrorCount,
		TrunkFlow:      r.TrunkFlow,
		DurationMicros: r.Duration.Microseconds(),
	}
	if r.TrunkPressure != nil {
		row.TrunkPressure = sql.NullFloat64{Float64: *r.TrunkPressure, Valid: true}
	}
	if r.MinLeafPressure != nil {
		row.MinLeafPressure = sql.NullFloat64{Float64: *r.MinLeafPressure, Valid: true}
	}
	return row
}

func fromRow(row runRow) Run {
	r := Run{
		ID:          row.ID,
		Network:     row.Network,
		NetworkHash: row.NetworkHash,
		CreatedAt:   time.UnixMicro(row.CreatedAt),
		Iterations:  row.Iterations,
		Converged:   row.Converged,
		ErrorCount:  row.ErrorCount,
		TrunkFlow:   row.TrunkFlow,
		Duration:    time.Duration(row.DurationMicros) * time.Microsecond,
	}
	if row.TrunkPressure.Valid {
		v := row.TrunkPressure.Float64
		r.TrunkPressure = &v
	}
	if row.MinLeafPressure.Valid {
		v := row.MinLeafPressure.Float64
		r.MinLeafPressure = &v
	}
	return r
}
