package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bulkmail/queue"
	"github.com/pure-golang/bulkmail/queue/encoders"
)

var tracer = otel.Tracer("github.com/pure-golang/bulkmail/queue/kafka")

var (
	_ queue.Publisher = (*Publisher)(nil)

	ErrPublisherClosed = errors.New("publisher is closed")
	ErrNoTopic         = errors.New("message has no topic")
)

// Publisher implements queue.Publisher with one synchronous writer per topic.
type Publisher struct {
	mx      sync.Mutex
	cfg     Config
	opts    PublisherOptions
	writers map[string]*kafka.Writer
	closed  bool
}

type PublisherOptions struct {
	Balancer kafka.Balancer // defaults to Hash so a recipient always lands on one partition
	Encoder  queue.Encoder  // defaults to JSON
	Logger   *slog.Logger
}

func NewPublisher(cfg Config, opts *PublisherOptions) *Publisher {
	var o PublisherOptions
	if opts != nil {
		o = *opts
	}
	if o.Encoder == nil {
		o.Encoder = encoders.JSON{}
	}
	if o.Balancer == nil {
		o.Balancer = &kafka.Hash{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.Logger = o.Logger.WithGroup("kafka")

	return &Publisher{
		cfg:     cfg,
		opts:    o,
		writers: make(map[string]*kafka.Writer),
	}
}

// Publish writes messages in order and stops at the first failure.
func (p *Publisher) Publish(ctx context.Context, messages ...queue.Message) error {
	for _, msg := range messages {
		if err := p.publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, msg queue.Message) (err error) {
	ctx, span := tracer.Start(ctx, "Kafka.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer func() { queue.EndSpan(span, err) }()

	km, err := p.message(ctx, msg)
	if err != nil {
		return err
	}

	writer, err := p.writer(km.Topic)
	if err != nil {
		return err
	}

	span.SetAttributes(
		attribute.String("topic", km.Topic),
		attribute.String("key", string(km.Key)),
		attribute.Int("body_size", len(km.Value)),
	)

	return errors.Wrapf(writer.WriteMessages(ctx, km), "failed to publish message to %s", km.Topic)
}

// message converts msg and injects the trace context into its headers.
func (p *Publisher) message(ctx context.Context, msg queue.Message) (kafka.Message, error) {
	if msg.Topic == "" {
		return kafka.Message{}, ErrNoTopic
	}

	body, err := msg.EncodeValue(p.opts.Encoder)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "failed to encode message body")
	}

	key := msg.Key
	if key == "" {
		key = uuid.NewString()
	}

	base := map[string]string{"content-type": p.opts.Encoder.ContentType()}
	maps.Copy(base, msg.Headers)
	headers := queue.TraceHeaders(ctx, base)

	km := kafka.Message{Topic: msg.Topic, Key: []byte(key), Value: body}
	for _, k := range slices.Sorted(maps.Keys(headers)) {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(headers[k])})
	}
	return km, nil
}

func (p *Publisher) writer(topic string) (*kafka.Writer, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.closed {
		return nil, ErrPublisherClosed
	}
	if w, ok := p.writers[topic]; ok {
		return w, nil
	}

	// Topic stays unset on the writer: each message carries its own.
	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.cfg.Brokers...),
		Balancer:               p.opts.Balancer,
		WriteTimeout:           p.cfg.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(p.cfg.RequiredAcks),
		AllowAutoTopicCreation: true,
		Logger:                 kafka.LoggerFunc(p.logf(slog.LevelDebug)),
		ErrorLogger:            kafka.LoggerFunc(p.logf(slog.LevelError)),
	}
	p.writers[topic] = w
	return w, nil
}

func (p *Publisher) logf(level slog.Level) func(string, ...any) {
	return func(format string, args ...any) {
		p.opts.Logger.Log(context.Background(), level, fmt.Sprintf(format, args...))
	}
}

// Close flushes and closes every writer. Safe to call more than once.
func (p *Publisher) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.opts.Logger.Error("failed to close writer", "topic", topic, "error", err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "close writer %s", topic)
			}
		}
	}
	p.writers = nil
	return firstErr
}
