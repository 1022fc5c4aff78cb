package main

import (
	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/env"
	"github.com/pure-golang/bulkmail/logger"
	"github.com/pure-golang/bulkmail/mail/smtp"
	"github.com/pure-golang/bulkmail/metrics"
	"github.com/pure-golang/bulkmail/tracing/otlp"
)

const (
	storeFile     = "file"
	storePostgres = "postgres"

	queueRabbitMQ = "rabbitmq"
	queueKafka    = "kafka"

	tallyRedis  = "redis"
	tallyMemory = "memory"
)

// Config selects the backends the runner is wired with. Backend specific
// settings are read by each backend's own Config.
type Config struct {
	DataDir       string `envconfig:"BULKMAIL_DATA_DIR" default:"data"`
	CampaignStore string `envconfig:"BULKMAIL_CAMPAIGN_STORE" default:"file"` // file | postgres
	CampaignDir   string `envconfig:"BULKMAIL_CAMPAIGN_DIR" default:"campaigns"`

	Tally       string `envconfig:"BULKMAIL_TALLY"` // "" | memory | redis
	Journal     bool   `envconfig:"BULKMAIL_JOURNAL" default:"false"`
	Queue       string `envconfig:"BULKMAIL_QUEUE"` // "" | rabbitmq | kafka
	QueueFormat string `envconfig:"BULKMAIL_QUEUE_FORMAT" default:"json"`

	RemoteAttachments bool   `envconfig:"BULKMAIL_S3_ATTACHMENTS" default:"false"`
	AttachmentCache   string `envconfig:"BULKMAIL_ATTACHMENT_CACHE"`

	VerifyConcurrency int `envconfig:"BULKMAIL_VERIFY_CONCURRENCY" default:"8"`

	Logger  logger.Config  `ignored:"true"`
	Metrics metrics.Config `ignored:"true"`
	Tracing otlp.Config    `ignored:"true"`
	SMTP    smtp.Config    `ignored:"true"`
}

func loadConfig() (Config, error) {
	var cfg Config
	for _, c := range []any{&cfg, &cfg.Logger, &cfg.Metrics, &cfg.Tracing, &cfg.SMTP} {
		if err := env.InitConfig(c); err != nil {
			return Config{}, err
		}
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.CampaignStore {
	case storeFile, storePostgres:
	default:
		return errors.Errorf("BULKMAIL_CAMPAIGN_STORE: unknown store %q", c.CampaignStore)
	}
	switch c.Tally {
	case "", tallyMemory, tallyRedis:
	default:
		return errors.Errorf("BULKMAIL_TALLY: unknown tally store %q", c.Tally)
	}
	switch c.Queue {
	case "", queueRabbitMQ, queueKafka:
	default:
		return errors.Errorf("BULKMAIL_QUEUE: unknown queue %q", c.Queue)
	}
	switch c.QueueFormat {
	case "json", "line":
	default:
		return errors.Errorf("BULKMAIL_QUEUE_FORMAT: unknown format %q", c.QueueFormat)
	}
	return nil
}
