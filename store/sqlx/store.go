// Package sqlx keeps campaigns in a PostgreSQL table as JSONB documents.
package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/store"
)

var (
	_      store.Store = (*Store)(nil)
	tracer             = otel.Tracer("github.com/pure-golang/bulkmail/store/sqlx")
)

const undefinedTable = pq.ErrorCode("42P01")

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
	name       TEXT        PRIMARY KEY,
	settings   JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type row struct {
	Name      string    `db:"name"`
	Settings  []byte    `db:"settings"`
	UpdatedAt time.Time `db:"updated_at"`
}

type Store struct {
	db  *sqlx.DB
	cfg Config
}

// Connect opens a lib/pq connection pool and pings it.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	ctx, span := tracer.Start(ctx, "sqlx.Connect", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.host", cfg.Host),
		attribute.String("db.name", cfg.Database),
	))
	defer span.End()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "failed to connect to PostgreSQL")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	return New(db, cfg), nil
}

// New wraps an open database.
func New(db *sqlx.DB, cfg Config) *Store {
	return &Store{db: db, cfg: cfg}
}

func (s *Store) Migrate(ctx context.Context) error {
	ctx, span, cancel := s.start(ctx, "Migrate", schema)
	defer cancel()
	defer span.End()

	_, err := s.db.ExecContext(ctx, schema)
	return s.finish(span, err, "failed to migrate campaigns table")
}

func (s *Store) Save(ctx context.Context, c store.Campaign) error {
	if err := store.ValidateName(c.Name); err != nil {
		return err
	}
	b, err := json.Marshal(c.Settings)
	if err != nil {
		return errors.Wrapf(err, "failed to encode campaign %s", c.Name)
	}

	const q = `
		INSERT INTO campaigns (name, settings, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET settings = EXCLUDED.settings, updated_at = now()`
	ctx, span, cancel := s.start(ctx, "Save", q)
	defer cancel()
	defer span.End()

	_, err = s.db.ExecContext(ctx, q, c.Name, b)
	return s.finish(span, err, "failed to save campaign %s", c.Name)
}

func (s *Store) Load(ctx context.Context, name string) (store.Campaign, error) {
	const q = `SELECT name, settings, updated_at FROM campaigns WHERE name = $1`
	ctx, span, cancel := s.start(ctx, "Load", q)
	defer cancel()
	defer span.End()

	var r row
	err := s.db.GetContext(ctx, &r, q, name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Campaign{}, errors.Wrapf(store.ErrNotFound, "%s", name)
	}
	if err := s.finish(span, err, "failed to load campaign %s", name); err != nil {
		return store.Campaign{}, err
	}

	var settings campaign.Settings
	if err := json.Unmarshal(r.Settings, &settings); err != nil {
		return store.Campaign{}, errors.Wrapf(err, "failed to decode campaign %s", name)
	}
	return store.Campaign{Name: r.Name, Settings: settings, UpdatedAt: r.UpdatedAt}, nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	const q = `SELECT name FROM campaigns ORDER BY name COLLATE "C"`
	ctx, span, cancel := s.start(ctx, "List", q)
	defer cancel()
	defer span.End()

	names := []string{}
	err := s.db.SelectContext(ctx, &names, q)
	return names, s.finish(span, err, "failed to list campaigns")
}

func (s *Store) Delete(ctx context.Context, name string) error {
	const q = `DELETE FROM campaigns WHERE name = $1`
	ctx, span, cancel := s.start(ctx, "Delete", q)
	defer cancel()
	defer span.End()

	res, err := s.db.ExecContext(ctx, q, name)
	if err := s.finish(span, err, "failed to delete campaign %s", name); err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(store.ErrNotFound, "%s", name)
	}
	return nil
}

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "failed to close database connection")
}

func (s *Store) start(ctx context.Context, op, query string) (context.Context, trace.Span, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if s.cfg.QueryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
	}
	ctx, span := tracer.Start(ctx, "sqlx."+op, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", query),
	))
	return ctx, span, cancel
}

func (s *Store) finish(span trace.Span, err error, format string, args ...any) error {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if isUndefinedTable(err) {
		return errors.Wrap(errors.Wrapf(err, format, args...), "campaigns table is missing, run Migrate")
	}
	return errors.Wrapf(err, format, args...)
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == undefinedTable
}
