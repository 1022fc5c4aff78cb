// Package queue publishes run events to a message broker.
package queue

import (
	"context"
	"io"
	"time"
)

// Topics the outcome sink publishes to.
const (
	TopicOutcomes = "bulkmail.outcomes"
	TopicFinished = "bulkmail.finished"
)

// Publisher delivers run events. Implementations are safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
	io.Closer
}

// Encoder converts a message body to bytes.
type Encoder interface {
	Encode(i any) ([]byte, error)
	ContentType() string
}

// Message is one run event. TTL overrides the publisher default when set.
type Message struct {
	Topic string
	// Key groups related messages, e.g. a Kafka partition key. Optional.
	Key     string
	Headers map[string]string
	Body    any
	TTL     time.Duration
}

// EncodeValue encodes Body with enc. A nil Body yields an empty payload.
func (m *Message) EncodeValue(enc Encoder) ([]byte, error) {
	if m.Body == nil {
		return nil, nil
	}
	return enc.Encode(m.Body)
}
