package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/workbench/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS agent_runs (
	id          TEXT PRIMARY KEY,
	account     TEXT NOT NULL,
	agent       TEXT NOT NULL,
	command     TEXT NOT NULL,
	args        TEXT NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'running',
	exit_code   INTEGER NOT NULL DEFAULT 0,
	stderr      TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_agent_runs_account ON agent_runs(account);
CREATE INDEX IF NOT EXISTS idx_agent_runs_status ON agent_runs(status);
CREATE INDEX IF NOT EXISTS idx_agent_runs_started_at ON agent_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.AgentRun) (*model.AgentRun, error) {
	run.ID = uuid.New().String()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}

	argsJSON, err := json.Marshal(run.Args)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal args")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_runs (id, account, agent, command, args, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Account, run.Agent, run.Command, string(argsJSON), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status model.RunStatus, exitCode int, stderr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_runs SET status = ?, exit_code = ?, stderr = ?, finished_at = ? WHERE id = ?`,
		string(status), exitCode, stderr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", id)
	}
	return checkRowsAffected(res, id)
}

const sqliteRunColumns = `id, account, agent, command, args, status, exit_code, stderr, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.AgentRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM agent_runs WHERE id = ?`,
		id,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.AgentRun, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM agent_runs WHERE 1=1`
	var args []any

	if filter.Account != "" {
		query += ` AND account = ?`
		args = append(args, filter.Account)
	}
	if filter.Agent != "" {
		query += ` AND agent = ?`
		args = append(args, filter.Agent)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.AgentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.AgentRun, error) {
	var r model.AgentRun
	var argsJSON string
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.Account, &r.Agent, &r.Command, &argsJSON, &r.Status, &r.ExitCode, &r.Stderr, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(argsJSON), &r.Args); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal args")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
