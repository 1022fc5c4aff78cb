package redis

import (
	"context"

	"github.com/pkg/errors"
	rclient "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bulkmail/tally"
)

var tracer = otel.Tracer("github.com/pure-golang/bulkmail/tally/redis")

// traced runs fn inside a span for one tally operation. A missing run is not
// an error on the span.
func (s *Store) traced(ctx context.Context, op, runID string, fn func(context.Context) error) error {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", s.cfg.DB),
	}
	if runID != "" {
		attrs = append(attrs, attribute.String("campaign.run_id", runID))
	}
	ctx, span := tracer.Start(ctx, "tally.redis."+op, trace.WithAttributes(attrs...))
	defer span.End()

	err := fn(ctx)
	switch {
	case err == nil, errors.Is(err, tally.ErrNotFound):
		span.SetStatus(codes.Ok, "")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// commandEvents adds the names of the commands a call sent to the active span.
type commandEvents struct{}

var _ rclient.Hook = commandEvents{}

func (commandEvents) DialHook(next rclient.DialHook) rclient.DialHook {
	return next
}

func (commandEvents) ProcessHook(next rclient.ProcessHook) rclient.ProcessHook {
	return func(ctx context.Context, cmd rclient.Cmder) error {
		err := next(ctx, cmd)
		annotate(ctx, cmd)
		return err
	}
}

func (commandEvents) ProcessPipelineHook(next rclient.ProcessPipelineHook) rclient.ProcessPipelineHook {
	return func(ctx context.Context, cmds []rclient.Cmder) error {
		err := next(ctx, cmds)
		annotate(ctx, cmds...)
		return err
	}
}

func annotate(ctx context.Context, cmds ...rclient.Cmder) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	names := make([]string, len(cmds))
	for i, cmd := range cmds {
		names[i] = cmd.Name()
	}
	span.AddEvent("redis.commands", trace.WithAttributes(attribute.StringSlice("redis.commands", names)))
}
