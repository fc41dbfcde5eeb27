package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"consensus/pkg/logx"
	"consensus/pkg/record"
)

// ErrRunNotFound is returned by LoadRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

const (
	pointPosition = "position"
	pointTarget   = "target"
)

// SQLiteStore persists runs into a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *logx.Logger
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := InitializeDatabase(path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, path: path, logger: logx.NewLogger("persistence")}
	s.logger.Info("📦 Database initialized: %s", path)
	return s, nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// SaveRun writes a run with all its entries in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, variant, agents, rounds, instances, model, seed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Variant, run.Agents, run.Rounds, run.Instances, run.Model, run.Seed,
		formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	for i := range run.Entries {
		if err := insertEntry(ctx, tx, run.ID, &run.Entries[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	logx.Debug(ctx, "persistence", "saved run %s with %d entries", run.ID, len(run.Entries))
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, runID string, e *Entry) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (run_id, instance, record_key) VALUES (?, ?, ?)`,
		runID, e.Instance, e.Key); err != nil {
		return fmt.Errorf("failed to insert entry %s: %w", e.Key, err)
	}

	for i := range e.Agents {
		a := &e.Agents[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agents (run_id, instance, agent, name, tokens) VALUES (?, ?, ?, ?, ?)`,
			runID, e.Instance, a.Index, a.Name, a.Tokens); err != nil {
			return fmt.Errorf("failed to insert agent %s of instance %d: %w", a.Name, e.Instance, err)
		}
		for seq, turn := range a.Turns {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO turns (run_id, instance, agent, seq, role, content) VALUES (?, ?, ?, ?, ?, ?)`,
				runID, e.Instance, a.Index, seq, turn.Role, turn.Content); err != nil {
				return fmt.Errorf("failed to insert turn %d of agent %s: %w", seq, a.Name, err)
			}
		}
		if err := insertPoints(ctx, tx, runID, e.Instance, a.Index, pointPosition, a.Positions); err != nil {
			return err
		}
		if err := insertPoints(ctx, tx, runID, e.Instance, a.Index, pointTarget, a.Targets); err != nil {
			return err
		}
	}
	return nil
}

func insertPoints(ctx context.Context, tx *sql.Tx, runID string, instance, agent int, kind string, points [][]float64) error {
	for seq, p := range points {
		if len(p) == 0 || len(p) > 2 {
			return fmt.Errorf("%s %d of agent %d has %d coordinates", kind, seq, agent, len(p))
		}
		var y sql.NullFloat64
		if len(p) == 2 {
			y = sql.NullFloat64{Float64: p[1], Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trajectory_points (run_id, instance, agent, kind, seq, x, y) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, instance, agent, kind, seq, p[0], y); err != nil {
			return fmt.Errorf("failed to insert %s point: %w", kind, err)
		}
	}
	return nil
}

// LoadRun reads a run back with every entry, agent, turn and point.
func (s *SQLiteStore) LoadRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{ID: id}
	var started, finished string
	err := s.db.QueryRowContext(ctx, `
		SELECT variant, agents, rounds, instances, model, seed, started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(&run.Variant, &run.Agents, &run.Rounds, &run.Instances, &run.Model, &run.Seed,
		&started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT instance, record_key FROM entries WHERE run_id = ? ORDER BY instance`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Instance, &e.Key); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		run.Entries = append(run.Entries, e)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	for i := range run.Entries {
		agents, err := s.loadAgents(ctx, id, run.Entries[i].Instance)
		if err != nil {
			return nil, err
		}
		run.Entries[i].Agents = agents
	}
	return run, nil
}

func (s *SQLiteStore) loadAgents(ctx context.Context, runID string, instance int) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent, name, tokens FROM agents WHERE run_id = ? AND instance = ? ORDER BY agent`,
		runID, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.Index, &a.Name, &a.Tokens); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agents: %w", err)
	}

	for i := range agents {
		a := &agents[i]
		if a.Turns, err = s.loadTurns(ctx, runID, instance, a.Index); err != nil {
			return nil, err
		}
		if a.Positions, err = s.loadPoints(ctx, runID, instance, a.Index, pointPosition); err != nil {
			return nil, err
		}
		if a.Targets, err = s.loadPoints(ctx, runID, instance, a.Index, pointTarget); err != nil {
			return nil, err
		}
	}
	return agents, nil
}

func (s *SQLiteStore) loadTurns(ctx context.Context, runID string, instance, agent int) ([]record.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM turns WHERE run_id = ? AND instance = ? AND agent = ? ORDER BY seq`,
		runID, instance, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []record.Turn
	for rows.Next() {
		var t record.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}
	return turns, nil
}

func (s *SQLiteStore) loadPoints(ctx context.Context, runID string, instance, agent int, kind string) ([][]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT x, y FROM trajectory_points
		WHERE run_id = ? AND instance = ? AND agent = ? AND kind = ?
		ORDER BY seq
	`, runID, instance, agent, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s points: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var points [][]float64
	for rows.Next() {
		var x float64
		var y sql.NullFloat64
		if err := rows.Scan(&x, &y); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		if y.Valid {
			points = append(points, []float64{x, y.Float64})
		} else {
			points = append(points, []float64{x})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate points: %w", err)
	}
	return points, nil
}

// ListRuns returns every stored run, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.variant, r.instances, COUNT(e.instance), r.started_at, r.finished_at
		FROM runs r LEFT JOIN entries e ON e.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Variant, &r.Instances, &r.Entries, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}
