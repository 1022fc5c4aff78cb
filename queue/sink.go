package queue

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/dispatch"
)

var _ dispatch.Sink = (*Sink)(nil)

// Sink publishes every outcome and the final tally of a run. Publish failures
// are logged and never reach the dispatcher.
type Sink struct {
	pub    Publisher
	logger *slog.Logger
}

func NewSink(pub Publisher, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{pub: pub, logger: logger.WithGroup("queue")}
}

func (s *Sink) Outcome(ctx context.Context, o campaign.Outcome) {
	s.publish(ctx, Message{
		Topic: TopicOutcomes,
		Key:   o.Recipient,
		Headers: map[string]string{
			"run_id": o.RunID,
			"index":  strconv.Itoa(o.Index),
			"status": o.Status,
		},
		Body: o,
	})
}

func (s *Sink) Finished(ctx context.Context, t campaign.Tally) {
	s.publish(ctx, Message{
		Topic:   TopicFinished,
		Key:     t.RunID,
		Headers: map[string]string{"run_id": t.RunID},
		Body:    t,
	})
}

func (s *Sink) publish(ctx context.Context, msg Message) {
	if err := s.pub.Publish(ctx, msg); err != nil {
		s.logger.Error("failed to publish event", "topic", msg.Topic, "key", msg.Key, "error", err)
	}
}
