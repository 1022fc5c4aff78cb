package rabbitmq

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bulkmail/queue"
	"github.com/pure-golang/bulkmail/queue/encoders"
)

var tracer = otel.Tracer("github.com/pure-golang/bulkmail/queue/rabbitmq")

var _ queue.Publisher = (*Publisher)(nil)

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

type Publisher struct {
	mx      sync.Mutex
	open    func() (channel, error)
	cfg     PublisherConfig
	channel channel
	closed  <-chan *amqp.Error
}

type DeliveryMode uint8

const (
	Transient  = DeliveryMode(amqp.Transient)
	Persistent = DeliveryMode(amqp.Persistent)
)

// PublisherConfig - config that can be passed to Publisher constructor.
type PublisherConfig struct {
	Exchange     string
	DeliveryMode DeliveryMode
	Encoder      queue.Encoder
	MessageTTL   time.Duration // precision to milliseconds
}

func NewPublisher(dialer *Dialer, cfg PublisherConfig) *Publisher {
	return newPublisher(func() (channel, error) { return dialer.Channel() }, cfg)
}

func newPublisher(open func() (channel, error), cfg PublisherConfig) *Publisher {
	if cfg.Encoder == nil {
		cfg.Encoder = encoders.JSON{}
	}
	if cfg.DeliveryMode == 0 {
		cfg.DeliveryMode = Persistent
	}

	closed := make(chan *amqp.Error)
	close(closed)

	return &Publisher{open: open, cfg: cfg, closed: closed}
}

// Publish messages to the exchange, routed by topic. Method is sync.
func (p *Publisher) Publish(ctx context.Context, messages ...queue.Message) error {
	ch, err := p.ensureChannel()
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if err := p.publish(ctx, ch, msg); err != nil {
			return err
		}
	}
	return nil
}

// ensureChannel reopens the channel after the broker closed it and declares the exchange.
func (p *Publisher) ensureChannel() (channel, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	select {
	case <-p.closed:
	default:
		return p.channel, nil
	}

	ch, err := p.open()
	if err != nil {
		return nil, err
	}
	if p.cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(p.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, errors.Wrapf(err, "failed to declare exchange %s", p.cfg.Exchange)
		}
	}
	p.channel = ch
	p.closed = ch.NotifyClose(make(chan *amqp.Error, 1))
	return ch, nil
}

func (p *Publisher) publish(ctx context.Context, ch channel, msg queue.Message) (err error) {
	ctx, span := tracer.Start(ctx, "RabbitMQ.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer func() { queue.EndSpan(span, err) }()

	amqpMsg, err := p.publishing(ctx, msg)
	if err != nil {
		return err
	}

	span.SetAttributes(
		attribute.String("id", amqpMsg.MessageId),
		attribute.String("exchange", p.cfg.Exchange),
		attribute.String("key", msg.Topic),
		attribute.Int("body_size", len(amqpMsg.Body)),
	)

	err = ch.PublishWithContext(ctx, p.cfg.Exchange, msg.Topic, false, false, amqpMsg)
	return errors.Wrapf(err, "failed to publish to %s/%s", p.cfg.Exchange, msg.Topic)
}

func (p *Publisher) publishing(ctx context.Context, msg queue.Message) (amqp.Publishing, error) {
	body, err := msg.EncodeValue(p.cfg.Encoder)
	if err != nil {
		return amqp.Publishing{}, errors.Wrap(err, "failed to encode message body")
	}

	out := amqp.Publishing{
		ContentType:   p.cfg.Encoder.ContentType(),
		MessageId:     uuid.NewString(),
		CorrelationId: msg.Key,
		DeliveryMode:  uint8(p.cfg.DeliveryMode),
		Timestamp:     time.Now(),
		Body:          body,
		Headers:       amqp.Table{},
	}
	for k, v := range queue.TraceHeaders(ctx, msg.Headers) {
		out.Headers[k] = v
	}
	ttl := p.cfg.MessageTTL
	if msg.TTL > 0 {
		ttl = msg.TTL
	}
	if ttl > 0 {
		out.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}
	return out, nil
}

// Close closes the channel. The dialer owns the connection.
func (p *Publisher) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.channel == nil {
		return nil
	}
	ch := p.channel
	p.channel = nil
	closed := make(chan *amqp.Error)
	close(closed)
	p.closed = closed
	return errors.Wrap(ch.Close(), "failed to close channel")
}
