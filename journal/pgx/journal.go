// Package pgx journals send outcomes to PostgreSQL through a pgx pool.
package pgx

import (
	"context"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/multitracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/journal"
)

var _ journal.Journal = (*Journal)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS send_outcomes (
	run_id       TEXT        NOT NULL,
	task_index   INTEGER     NOT NULL,
	recipient    TEXT        NOT NULL,
	ok           BOOLEAN     NOT NULL,
	status       TEXT        NOT NULL,
	error        TEXT        NOT NULL DEFAULT '',
	smtp_host    TEXT        NOT NULL DEFAULT '',
	scheduled_at TIMESTAMPTZ NOT NULL,
	sent_at      TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT      NOT NULL,
	PRIMARY KEY (run_id, task_index)
);

CREATE TABLE IF NOT EXISTS send_runs (
	run_id      TEXT        PRIMARY KEY,
	total       INTEGER     NOT NULL,
	sent        INTEGER     NOT NULL,
	failed      INTEGER     NOT NULL,
	dropped     INTEGER     NOT NULL,
	canceled    INTEGER     NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Journal is a journal.Journal over a pgxpool.Pool.
type Journal struct {
	pool *pgxpool.Pool
}

type Options struct {
	// Tracers replace the default otelpgx + tracelog pair.
	Tracers []pgx.QueryTracer
}

// Connect opens the pool and pings the database.
func Connect(ctx context.Context, cfg Config, options *Options) (*Journal, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL().String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to pgxpool.ParseConfig")
	}

	poolCfg.MaxConns = max(cfg.MaxConns, 1)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifeTime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = 20 * time.Second

	tracers := []pgx.QueryTracer{
		otelpgx.NewTracer(),
		&tracelog.TraceLog{Logger: queryLogger{}, LogLevel: parseTraceLogLevel(cfg.TraceLogLevel)},
	}
	if options != nil && len(options.Tracers) > 0 {
		tracers = options.Tracers
	}
	poolCfg.ConnConfig.Tracer = multitracer.New(tracers...)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init database connections pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &Journal{pool: pool}, nil
}

// Migrate creates the journal tables if they do not exist.
func (j *Journal) Migrate(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, schema)
	return errors.Wrap(err, "failed to migrate journal schema")
}

func (j *Journal) Append(ctx context.Context, o campaign.Outcome) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO send_outcomes
			(run_id, task_index, recipient, ok, status, error, smtp_host, scheduled_at, sent_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.RunID, o.Index, o.Recipient, o.OK, o.Status, o.Error, o.Host,
		o.ScheduledAt, o.At, o.Duration.Milliseconds(),
	)
	if _, ok := ErrorIs(err, UniqueViolation); ok {
		return errors.Wrapf(journal.ErrDuplicate, "run %s task %d", o.RunID, o.Index)
	}
	return errors.Wrapf(err, "failed to append outcome %d of run %s", o.Index, o.RunID)
}

func (j *Journal) Finish(ctx context.Context, t campaign.Tally) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO send_runs (run_id, total, sent, failed, dropped, canceled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			total = EXCLUDED.total, sent = EXCLUDED.sent, failed = EXCLUDED.failed,
			dropped = EXCLUDED.dropped, canceled = EXCLUDED.canceled, finished_at = now()`,
		t.RunID, t.Total, t.Sent, t.Failed, t.Dropped, t.Canceled,
	)
	return errors.Wrapf(err, "failed to finish run %s", t.RunID)
}

func (j *Journal) Outcomes(ctx context.Context, runID string) ([]campaign.Outcome, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT run_id, task_index, recipient, ok, status, error, smtp_host, scheduled_at, sent_at, duration_ms
		FROM send_outcomes
		WHERE run_id = $1
		ORDER BY task_index`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query outcomes of run %s", runID)
	}

	outcomes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (campaign.Outcome, error) {
		var (
			o  campaign.Outcome
			ms int64
		)
		err := row.Scan(&o.RunID, &o.Index, &o.Recipient, &o.OK, &o.Status, &o.Error, &o.Host,
			&o.ScheduledAt, &o.At, &ms)
		o.Duration = time.Duration(ms) * time.Millisecond
		return o, err
	})
	return outcomes, errors.Wrapf(err, "failed to scan outcomes of run %s", runID)
}

// Tally returns the stored final tally of a run, or pgx.ErrNoRows.
func (j *Journal) Tally(ctx context.Context, runID string) (campaign.Tally, error) {
	t := campaign.Tally{RunID: runID}
	err := j.pool.QueryRow(ctx,
		`SELECT total, sent, failed, dropped, canceled FROM send_runs WHERE run_id = $1`, runID,
	).Scan(&t.Total, &t.Sent, &t.Failed, &t.Dropped, &t.Canceled)
	if err != nil {
		return campaign.Tally{}, errors.Wrapf(err, "failed to get tally of run %s", runID)
	}
	return t, nil
}

func (j *Journal) Close() error {
	j.pool.Close()
	return nil
}
