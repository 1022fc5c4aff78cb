// Package redis keeps run tallies in Redis: one hash of counters per run plus a
// list of failed recipients.
package redis

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/pkg/errors"
	rclient "github.com/redis/go-redis/v9"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/tally"
)

var _ tally.Store = (*Store)(nil)

const (
	fieldTotal      = "total"
	fieldSent       = "sent"
	fieldFailed     = "failed"
	fieldDropped    = "dropped"
	fieldCanceled   = "canceled"
	fieldFinishedAt = "finished_at"
)

type Store struct {
	client *rclient.Client
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

type Options struct {
	Logger *slog.Logger
}

// Connect dials Redis and checks the connection with PING.
func Connect(ctx context.Context, cfg Config, opts *Options) (*Store, error) {
	logger := slog.Default()
	if opts != nil && opts.Logger != nil {
		logger = opts.Logger
	}
	logger = logger.WithGroup("redis")
	logger.Debug("connecting to redis", "addr", cfg.Addr)

	client := rclient.NewClient(&rclient.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
	})

	client.AddHook(commandEvents{})

	s := &Store{client: client, cfg: cfg, logger: logger, now: time.Now}
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("connected to redis", "addr", cfg.Addr)
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.traced(ctx, "Ping", "", func(ctx context.Context) error {
		return errors.Wrap(s.client.Ping(ctx).Err(), "failed to ping redis")
	})
}

func (s *Store) runKey(runID string) string {
	return s.cfg.KeyPrefix + ":run:" + runID
}

func (s *Store) failedKey(runID string) string {
	return s.runKey(runID) + ":failed"
}

func (s *Store) Record(ctx context.Context, o campaign.Outcome) error {
	return s.traced(ctx, "Record", o.RunID, func(ctx context.Context) error {
		_, err := s.client.TxPipelined(ctx, func(pipe rclient.Pipeliner) error {
			if o.OK {
				pipe.HIncrBy(ctx, s.runKey(o.RunID), fieldSent, 1)
				return nil
			}
			pipe.HIncrBy(ctx, s.runKey(o.RunID), fieldFailed, 1)
			pipe.RPush(ctx, s.failedKey(o.RunID), tally.Failure(o))
			return nil
		})
		return errors.Wrapf(err, "failed to record outcome %d of run %s", o.Index, o.RunID)
	})
}

// Finish overwrites the counters with the final tally and starts the retention TTL.
func (s *Store) Finish(ctx context.Context, t campaign.Tally) error {
	return s.traced(ctx, "Finish", t.RunID, func(ctx context.Context) error {
		_, err := s.client.TxPipelined(ctx, func(pipe rclient.Pipeliner) error {
			pipe.HSet(ctx, s.runKey(t.RunID), encodeTally(t, s.now()))
			if s.cfg.TTL > 0 {
				pipe.Expire(ctx, s.runKey(t.RunID), s.cfg.TTL)
				pipe.Expire(ctx, s.failedKey(t.RunID), s.cfg.TTL)
			}
			return nil
		})
		return errors.Wrapf(err, "failed to finish run %s", t.RunID)
	})
}

func (s *Store) Get(ctx context.Context, runID string) (tally.Progress, error) {
	var p tally.Progress
	err := s.traced(ctx, "Get", runID, func(ctx context.Context) error {
		var (
			hash     *rclient.MapStringStringCmd
			failures *rclient.StringSliceCmd
		)
		_, err := s.client.TxPipelined(ctx, func(pipe rclient.Pipeliner) error {
			hash = pipe.HGetAll(ctx, s.runKey(runID))
			failures = pipe.LRange(ctx, s.failedKey(runID), 0, -1)
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "failed to get run %s", runID)
		}
		if len(hash.Val()) == 0 {
			return tally.ErrNotFound
		}

		p, err = decodeProgress(runID, hash.Val())
		if err != nil {
			return err
		}
		p.Failures = failures.Val()
		return nil
	})
	if err != nil {
		return tally.Progress{}, err
	}
	return p, nil
}

func (s *Store) Close() error {
	return errors.Wrap(s.client.Close(), "failed to close redis connection")
}

func encodeTally(t campaign.Tally, at time.Time) map[string]any {
	return map[string]any{
		fieldTotal:      t.Total,
		fieldSent:       t.Sent,
		fieldFailed:     t.Failed,
		fieldDropped:    t.Dropped,
		fieldCanceled:   t.Canceled,
		fieldFinishedAt: at.UTC().Format(time.RFC3339),
	}
}

func decodeProgress(runID string, h map[string]string) (tally.Progress, error) {
	p := tally.Progress{Tally: campaign.Tally{RunID: runID}}
	for field, dst := range map[string]*int{
		fieldTotal:    &p.Total,
		fieldSent:     &p.Sent,
		fieldFailed:   &p.Failed,
		fieldDropped:  &p.Dropped,
		fieldCanceled: &p.Canceled,
	} {
		raw, ok := h[field]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return tally.Progress{}, errors.Wrapf(err, "run %s: field %s", runID, field)
		}
		*dst = n
	}
	_, p.Finished = h[fieldFinishedAt]
	return p, nil
}
