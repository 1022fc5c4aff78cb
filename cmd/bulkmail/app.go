package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/attachments"
	"github.com/pure-golang/bulkmail/dispatch"
	"github.com/pure-golang/bulkmail/env"
	"github.com/pure-golang/bulkmail/journal"
	journalpgx "github.com/pure-golang/bulkmail/journal/pgx"
	"github.com/pure-golang/bulkmail/mail"
	"github.com/pure-golang/bulkmail/mail/noop"
	"github.com/pure-golang/bulkmail/mail/smtp"
	"github.com/pure-golang/bulkmail/queue"
	"github.com/pure-golang/bulkmail/queue/encoders"
	"github.com/pure-golang/bulkmail/queue/kafka"
	"github.com/pure-golang/bulkmail/queue/rabbitmq"
	"github.com/pure-golang/bulkmail/runner"
	"github.com/pure-golang/bulkmail/source"
	"github.com/pure-golang/bulkmail/storage"
	"github.com/pure-golang/bulkmail/storage/minio"
	"github.com/pure-golang/bulkmail/store"
	"github.com/pure-golang/bulkmail/store/file"
	"github.com/pure-golang/bulkmail/store/sqlx"
	"github.com/pure-golang/bulkmail/tally"
	"github.com/pure-golang/bulkmail/tally/memory"
	tallyredis "github.com/pure-golang/bulkmail/tally/redis"
)

// app owns every backend opened for one command and closes them in reverse order.
type app struct {
	cfg     Config
	logger  *slog.Logger
	closers []io.Closer
}

func (a *app) own(c io.Closer) {
	a.closers = append(a.closers, c)
}

func (a *app) Close() error {
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return errors.Errorf("failed to close backends: %v", errs)
	}
	return nil
}

func (a *app) campaigns(ctx context.Context, migrate bool) (store.Store, error) {
	if a.cfg.CampaignStore == storeFile {
		return file.NewStore(a.cfg.CampaignDir), nil
	}

	var cfg sqlx.Config
	if err := env.InitConfig(&cfg); err != nil {
		return nil, err
	}
	s, err := sqlx.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.own(s)
	if migrate {
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *app) tallyStore(ctx context.Context) (tally.Store, error) {
	switch a.cfg.Tally {
	case tallyMemory:
		s := memory.NewStore()
		a.own(s)
		return s, nil
	case tallyRedis:
		var cfg tallyredis.Config
		if err := env.InitConfig(&cfg); err != nil {
			return nil, err
		}
		s, err := tallyredis.Connect(ctx, cfg, &tallyredis.Options{Logger: a.logger})
		if err != nil {
			return nil, err
		}
		a.own(s)
		return s, nil
	}
	return nil, nil
}

func (a *app) journal(ctx context.Context, migrate bool) (*journalpgx.Journal, error) {
	var cfg journalpgx.Config
	if err := env.InitConfig(&cfg); err != nil {
		return nil, err
	}
	j, err := journalpgx.Connect(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	a.own(j)
	if migrate {
		if err := j.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (a *app) publisher() (queue.Publisher, error) {
	var enc queue.Encoder = encoders.JSON{}
	if a.cfg.QueueFormat == "line" {
		enc = encoders.Line{}
	}

	switch a.cfg.Queue {
	case queueRabbitMQ:
		var cfg rabbitmq.Config
		if err := env.InitConfig(&cfg); err != nil {
			return nil, err
		}
		dialer := rabbitmq.NewDialer(cfg.URL, &rabbitmq.DialerOptions{
			Logger:         a.logger,
			ConnectionName: cfg.ConnectionName,
			Heartbeat:      cfg.Heartbeat,
		})
		if err := dialer.Connect(); err != nil {
			return nil, err
		}
		a.own(dialer)
		pub := rabbitmq.NewPublisher(dialer, rabbitmq.PublisherConfig{Exchange: cfg.Exchange, Encoder: enc})
		a.own(pub)
		return pub, nil
	case queueKafka:
		var cfg kafka.Config
		if err := env.InitConfig(&cfg); err != nil {
			return nil, err
		}
		pub := kafka.NewPublisher(cfg, &kafka.PublisherOptions{Encoder: enc, Logger: a.logger})
		a.own(pub)
		return pub, nil
	}
	return nil, nil
}

// sink fans the outcome stream out to the log and every configured backend.
func (a *app) sink(ctx context.Context, migrate bool, tallies tally.Store) (dispatch.Sink, error) {
	sinks := []dispatch.Sink{dispatch.LogSink(a.logger.WithGroup("outcomes"))}
	if tallies != nil {
		sinks = append(sinks, tally.NewSink(tallies, a.logger))
	}
	if a.cfg.Journal {
		j, err := a.journal(ctx, migrate)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, journal.NewSink(j, a.logger))
	}
	pub, err := a.publisher()
	if err != nil {
		return nil, err
	}
	if pub != nil {
		sinks = append(sinks, queue.NewSink(pub, a.logger))
	}
	return dispatch.Multi(sinks...), nil
}

func (a *app) sender(ctx context.Context, dryRun bool) (mail.Sender, error) {
	var base mail.Sender
	if dryRun {
		base = noop.NewSender()
	} else {
		base = smtp.NewSender(a.cfg.SMTP, &smtp.SenderOptions{Logger: a.logger.WithGroup("smtp")})
	}

	var objects storage.Storage
	if a.cfg.RemoteAttachments {
		var cfg minio.Config
		if err := env.InitConfig(&cfg); err != nil {
			return nil, err
		}
		s, err := minio.Connect(ctx, cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.own(s)
		objects = s
	}

	sender, err := attachments.New(base, objects, &attachments.Options{Logger: a.logger, CacheDir: a.cfg.AttachmentCache})
	if err != nil {
		return nil, err
	}
	a.own(sender)
	return sender, nil
}

func (a *app) runner(campaigns store.Store, sender mail.Sender, sink dispatch.Sink) *runner.Runner {
	return &runner.Runner{
		Campaigns:   campaigns,
		Loader:      source.Loader{Dir: filepath.Clean(a.cfg.DataDir)},
		Sender:      sender,
		Sink:        sink,
		Logger:      a.logger,
		VerifyLimit: a.cfg.VerifyConcurrency,
	}
}
