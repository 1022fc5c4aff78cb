package rabbitmq

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrConnectionClosed = errors.New("connection is closed manually")

// Dialer owns one AMQP connection and re-dials it when the broker drops it.
type Dialer struct {
	uri     string
	conn    *amqp.Connection
	options DialerOptions
	mx      sync.Mutex
	closed  bool
}

type DialerOptions struct {
	RetryPolicy RetryPolicy
	Logger      *slog.Logger
	// ConnectionName is shown in the management UI. Defaults to "bulkmail".
	ConnectionName string
	// Heartbeat below zero disables heartbeats; zero keeps the library default.
	Heartbeat time.Duration
}

func NewDialer(uri string, options *DialerOptions) *Dialer {
	var o DialerOptions
	if options != nil {
		o = *options
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.Logger = o.Logger.WithGroup("rabbitmq")
	if o.RetryPolicy == nil {
		o.RetryPolicy = NewDefaultBackoff()
	}
	if o.ConnectionName == "" {
		o.ConnectionName = "bulkmail"
	}

	return &Dialer{uri: uri, options: o}
}

func (d *Dialer) Connect() error {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.closed {
		return ErrConnectionClosed
	}

	d.options.Logger.Debug("dialing")
	conn, err := amqp.DialConfig(d.uri, d.config())
	if err != nil {
		return errors.Wrap(err, "failed to dial")
	}

	ch := conn.NotifyClose(make(chan *amqp.Error, 1))
	d.conn = conn
	go d.handleReconnect(ch)
	return nil
}

func (d *Dialer) config() amqp.Config {
	cfg := amqp.Config{
		Properties: amqp.NewConnectionProperties(),
		Heartbeat:  d.options.Heartbeat,
	}
	cfg.Properties.SetClientConnectionName(d.options.ConnectionName)
	if d.options.Heartbeat < 0 {
		cfg.Heartbeat = 0
	} else if d.options.Heartbeat == 0 {
		cfg.Heartbeat = 10 * time.Second
	}
	return cfg
}

func (d *Dialer) Channel() (*amqp.Channel, error) {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.conn == nil {
		return nil, ErrConnectionClosed
	}

	channel, err := d.conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open channel")
	}
	return channel, nil
}

func (d *Dialer) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()

	d.closed = true
	if d.conn == nil {
		return nil
	}
	conn := d.conn
	d.conn = nil
	return errors.Wrap(conn.Close(), "failed to close RabbitMQ connection")
}

// handleReconnect waits for the connection to drop and re-dials per the retry policy.
// A connection closed through Close yields no error and ends the loop.
func (d *Dialer) handleReconnect(ch <-chan *amqp.Error) {
	amqpErr, ok := <-ch
	if !ok || amqpErr == nil {
		d.options.Logger.Debug("shutdown")
		return
	}
	d.options.Logger.Warn("disconnected", "error", amqpErr.Error())

	for i := 0; ; i++ {
		err := d.Connect()
		if err == nil || errors.Is(err, ErrConnectionClosed) {
			return
		}

		sleep, stop := d.options.RetryPolicy.TryNum(i)
		if stop {
			d.options.Logger.Error("giving up reconnecting to rabbitmq", "error", err)
			return
		}
		d.options.Logger.Error("failed to reconnect", "error", err, "retry_in", sleep)
		time.Sleep(sleep)
	}
}
