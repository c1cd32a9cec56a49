// Package persistence provides SQLite-based storage of experiment results.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/seir-sim/internal/config"
	"github.com/talgya/seir-sim/internal/engine"
	"github.com/talgya/seir-sim/internal/experiment"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for result storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS experiments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_unix INTEGER NOT NULL,
		layout TEXT NOT NULL,
		heatmap_key TEXT NOT NULL,
		n_runs INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		config_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		experiment_id TEXT NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
		run_index INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL,
		ticks INTEGER NOT NULL,
		peak_infectious INTEGER NOT NULL,
		peak_tick INTEGER NOT NULL,
		attack_rate REAL NOT NULL,
		final_s INTEGER NOT NULL,
		final_e INTEGER NOT NULL,
		final_i INTEGER NOT NULL,
		final_r INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		UNIQUE (experiment_id, run_index)
	);

	CREATE TABLE IF NOT EXISTS run_counts (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		tick INTEGER NOT NULL,
		susceptible INTEGER NOT NULL,
		exposed INTEGER NOT NULL,
		infectious INTEGER NOT NULL,
		removed INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS exposures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		tick INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		source_id INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment_id);
	CREATE INDEX IF NOT EXISTS idx_exposures_run ON exposures(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// ExperimentRecord is a stored experiment.
type ExperimentRecord struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	CreatedUnix int64  `db:"created_unix"`
	Layout      string `db:"layout"`
	HeatmapKey  string `db:"heatmap_key"`
	NRuns       int    `db:"n_runs"`
	Failed      int    `db:"failed"`
	ConfigJSON  string `db:"config_json"`
}

// Created returns the creation time.
func (r ExperimentRecord) Created() time.Time {
	return time.Unix(r.CreatedUnix, 0)
}

// Config decodes the stored configuration.
func (r ExperimentRecord) Config() (*config.Experiment, error) {
	cfg := config.Default()
	if err := json.Unmarshal([]byte(r.ConfigJSON), cfg); err != nil {
		return nil, fmt.Errorf("decode config of experiment %s: %w", r.ID, err)
	}
	return cfg, nil
}

// NewRecord creates a record with a fresh id for cfg.
func NewRecord(cfg *config.Experiment, layout, heatmapKey string) (ExperimentRecord, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ExperimentRecord{}, fmt.Errorf("encode config: %w", err)
	}
	return ExperimentRecord{
		ID:          uuid.NewString(),
		Name:        cfg.RunName,
		CreatedUnix: time.Now().Unix(),
		Layout:      layout,
		HeatmapKey:  heatmapKey,
		NRuns:       cfg.NRuns,
		ConfigJSON:  string(data),
	}, nil
}

// RunRecord is a stored run summary.
type RunRecord struct {
	ID             int64   `db:"id"`
	ExperimentID   string  `db:"experiment_id"`
	RunIndex       int     `db:"run_index"`
	Seed           int64   `db:"seed"`
	Status         string  `db:"status"`
	Error          string  `db:"error"`
	Ticks          int     `db:"ticks"`
	PeakInfectious int     `db:"peak_infectious"`
	PeakTick       int     `db:"peak_tick"`
	AttackRate     float64 `db:"attack_rate"`
	FinalS         int     `db:"final_s"`
	FinalE         int     `db:"final_e"`
	FinalI         int     `db:"final_i"`
	FinalR         int     `db:"final_r"`
	ElapsedMS      int64   `db:"elapsed_ms"`
}

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// SaveExperiment writes the experiment, its runs, their per-tick counts and
// exposures in one transaction.
func (db *DB) SaveExperiment(ctx context.Context, rec ExperimentRecord, outcomes []experiment.Outcome) error {
	rec.Failed = experiment.Failed(outcomes)
	slog.Info("saving experiment", "id", rec.ID, "name", rec.Name, "runs", len(outcomes), "failed", rec.Failed)

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `INSERT INTO experiments
		(id, name, created_unix, layout, heatmap_key, n_runs, failed, config_json)
		VALUES (:id, :name, :created_unix, :layout, :heatmap_key, :n_runs, :failed, :config_json)`, rec); err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}

	countStmt, err := tx.PreparexContext(ctx, `INSERT INTO run_counts
		(run_id, tick, susceptible, exposed, infectious, removed) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer countStmt.Close()

	expStmt, err := tx.PreparexContext(ctx, `INSERT INTO exposures
		(run_id, tick, agent_id, source_id, x, y) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer expStmt.Close()

	for _, o := range outcomes {
		run := runRecord(rec.ID, o)
		res, err := tx.NamedExecContext(ctx, `INSERT INTO runs
			(experiment_id, run_index, seed, status, error, ticks, peak_infectious, peak_tick,
			 attack_rate, final_s, final_e, final_i, final_r, elapsed_ms)
			VALUES (:experiment_id, :run_index, :seed, :status, :error, :ticks, :peak_infectious, :peak_tick,
			 :attack_rate, :final_s, :final_e, :final_i, :final_r, :elapsed_ms)`, run)
		if err != nil {
			return fmt.Errorf("insert run %d: %w", o.Run, err)
		}
		if !o.OK() {
			continue
		}
		runID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := countStmt.ExecContext(ctx, runID, 0, o.Result.Initial.S, o.Result.Initial.E, o.Result.Initial.I, o.Result.Initial.R); err != nil {
			return fmt.Errorf("insert counts of run %d: %w", o.Run, err)
		}
		for i, c := range o.Result.Counts {
			if _, err := countStmt.ExecContext(ctx, runID, i+1, c.S, c.E, c.I, c.R); err != nil {
				return fmt.Errorf("insert counts of run %d: %w", o.Run, err)
			}
		}
		for _, e := range o.Result.Exposures {
			if _, err := expStmt.ExecContext(ctx, runID, e.Tick, int64(e.Agent), int64(e.Source), e.X, e.Y); err != nil {
				return fmt.Errorf("insert exposure of run %d: %w", o.Run, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("experiment saved", "id", rec.ID)
	return nil
}

func runRecord(experimentID string, o experiment.Outcome) RunRecord {
	r := RunRecord{
		ExperimentID: experimentID,
		RunIndex:     o.Run,
		Seed:         o.Seed,
		Status:       StatusFailed,
		ElapsedMS:    o.Elapsed.Milliseconds(),
	}
	if !o.OK() {
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		return r
	}
	s := o.Result.Summary()
	r.Status = StatusOK
	r.Ticks = len(o.Result.Counts)
	r.PeakInfectious = s.PeakInfectious
	r.PeakTick = s.PeakTick
	r.AttackRate = s.AttackRate
	r.FinalS, r.FinalE, r.FinalI, r.FinalR = s.Final.S, s.Final.E, s.Final.I, s.Final.R
	return r
}

// ListExperiments returns stored experiments, newest first.
func (db *DB) ListExperiments(ctx context.Context) ([]ExperimentRecord, error) {
	var recs []ExperimentRecord
	err := db.conn.SelectContext(ctx, &recs,
		"SELECT * FROM experiments ORDER BY created_unix DESC, id")
	return recs, err
}

// GetExperiment looks an experiment up by id or unique id prefix.
func (db *DB) GetExperiment(ctx context.Context, idPrefix string) (ExperimentRecord, error) {
	var recs []ExperimentRecord
	pattern := strings.NewReplacer("%", "", "_", "").Replace(idPrefix) + "%"
	if err := db.conn.SelectContext(ctx, &recs,
		"SELECT * FROM experiments WHERE id LIKE ? ORDER BY id LIMIT 2", pattern); err != nil {
		return ExperimentRecord{}, err
	}
	switch len(recs) {
	case 0:
		return ExperimentRecord{}, fmt.Errorf("experiment %q: %w", idPrefix, ErrNotFound)
	case 1:
		return recs[0], nil
	default:
		return ExperimentRecord{}, fmt.Errorf("experiment prefix %q is ambiguous", idPrefix)
	}
}

// ListRuns returns the runs of an experiment ordered by index.
func (db *DB) ListRuns(ctx context.Context, experimentID string) ([]RunRecord, error) {
	var runs []RunRecord
	err := db.conn.SelectContext(ctx, &runs,
		"SELECT * FROM runs WHERE experiment_id = ? ORDER BY run_index", experimentID)
	return runs, err
}

// LoadRunCounts returns the per-tick counts of a run. Index 0 holds the
// counts after seeding; index t holds the counts at the end of tick t.
func (db *DB) LoadRunCounts(ctx context.Context, runID int64) ([]engine.Counts, error) {
	var counts []engine.Counts
	err := db.conn.SelectContext(ctx, &counts,
		"SELECT susceptible, exposed, infectious, removed FROM run_counts WHERE run_id = ? ORDER BY tick", runID)
	return counts, err
}

// LoadExposures returns the exposure events of a run in tick order.
func (db *DB) LoadExposures(ctx context.Context, runID int64) ([]engine.Exposure, error) {
	var exposures []engine.Exposure
	err := db.conn.SelectContext(ctx, &exposures,
		"SELECT tick, agent_id, source_id, x, y FROM exposures WHERE run_id = ? ORDER BY id", runID)
	return exposures, err
}

// DeleteExperiment removes an experiment and everything stored under it.
func (db *DB) DeleteExperiment(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM experiments WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("experiment %q: %w", id, ErrNotFound)
	}
	return nil
}

// SaveMeta stores a key-value pair in metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key returns ErrNotFound.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %q: %w", key, ErrNotFound)
	}
	return value, err
}
