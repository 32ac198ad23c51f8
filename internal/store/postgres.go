package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/workbench/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS agent_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	account     TEXT NOT NULL,
	agent       TEXT NOT NULL,
	command     TEXT NOT NULL,
	args        JSONB NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'running',
	exit_code   INTEGER NOT NULL DEFAULT 0,
	stderr      TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_agent_runs_account ON agent_runs(account);
CREATE INDEX IF NOT EXISTS idx_agent_runs_status ON agent_runs(status);
CREATE INDEX IF NOT EXISTS idx_agent_runs_started_at ON agent_runs(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.AgentRun) (*model.AgentRun, error) {
	run.ID = uuid.New().String()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}

	argsJSON, err := json.Marshal(run.Args)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal args")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_runs (id, account, agent, command, args, status, started_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Account, run.Agent, run.Command, argsJSON, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, id string, status model.RunStatus, exitCode int, stderr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_runs SET status = $1, exit_code = $2, stderr = $3, finished_at = $4 WHERE id = $5`,
		string(status), exitCode, stderr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s", id)
	}
	return nil
}

const pgRunColumns = `id, account, agent, command, args, status, exit_code, stderr, started_at, finished_at`

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.AgentRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM agent_runs WHERE id = $1`,
		id,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "%s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.AgentRun, error) {
	query := `SELECT ` + pgRunColumns + ` FROM agent_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Account != "" {
		query += fmt.Sprintf(` AND account = $%d`, argIdx)
		args = append(args, filter.Account)
		argIdx++
	}
	if filter.Agent != "" {
		query += fmt.Sprintf(` AND agent = $%d`, argIdx)
		args = append(args, filter.Agent)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.AgentRun
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*model.AgentRun, error) {
	var r model.AgentRun
	var argsJSON []byte
	var status string
	var finished sql.NullTime

	if err := row.Scan(&r.ID, &r.Account, &r.Agent, &r.Command, &argsJSON, &status, &r.ExitCode, &r.Stderr, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &r.Args); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal args")
		}
	}
	return &r, nil
}
