// Package metrics exposes the Prometheus registry the send path reports into.
// Long timer runs are scraped from the HTTP endpoint; short runs can push their
// final values to a Pushgateway when the process exits.
package metrics

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Config struct {
	Enabled     bool          `envconfig:"METRICS_ENABLED" default:"false"`
	Host        string        `envconfig:"METRICS_HOST" default:"0.0.0.0"`
	Port        int           `envconfig:"METRICS_PORT" default:"9090"`
	ReadTimeout time.Duration `envconfig:"METRICS_READ_TIMEOUT" default:"30s"`
	PushURL     string        `envconfig:"METRICS_PUSH_URL"`
	PushJob     string        `envconfig:"METRICS_PUSH_JOB" default:"bulkmail"`
}

// Metrics owns the scrape server, the gateway pusher, or both.
type Metrics struct {
	config Config
	server *http.Server
	pusher *push.Pusher
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitDefault starts whatever the config enables. The returned closer pushes the
// last values and stops the server.
func InitDefault(config Config) (io.Closer, error) {
	if !config.Enabled && config.PushURL == "" {
		return nopCloser{}, nil
	}

	provider := New(config)
	if err := provider.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start metrics")
	}

	return provider, nil
}

func New(config Config) *Metrics {
	m := &Metrics{config: config}
	if config.Enabled {
		m.server = NewHttpServer(config)
	}
	if config.PushURL != "" {
		job := config.PushJob
		if job == "" {
			job = "bulkmail"
		}
		m.pusher = push.New(config.PushURL, job).Gatherer(prometheus.DefaultGatherer)
	}
	return m
}

func (m *Metrics) Start() error {
	if err := InitPrometheus(); err != nil {
		return errors.Wrap(err, "failed to init prometheus")
	}
	if m.server == nil {
		return nil
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Default().Warn("metrics server failed", "error", err.Error())
		}
	}()

	return nil
}

func (m *Metrics) Close() error {
	var pushErr, closeErr error
	if m.pusher != nil {
		pushErr = errors.Wrapf(m.pusher.Push(), "failed to push metrics to %s", m.config.PushURL)
	}
	if m.server != nil {
		closeErr = errors.Wrap(m.server.Close(), "failed to close metrics server")
	}
	if pushErr != nil {
		return pushErr
	}
	return closeErr
}

// NewHttpServer exposes /metrics and a /healthz liveness probe for long timer runs.
func NewHttpServer(conf Config) *http.Server {
	r := http.NewServeMux()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:        fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Handler:     r,
		ReadTimeout: conf.ReadTimeout,
	}
}
