// Package dispatch executes assembled campaign tasks against a mail.Sender.
//
// Two strategies are provided. Sequential sends tasks strictly in order on a
// single worker and ignores target times. Timer arms one timer per task and
// sends each at its target time, concurrently with the others.
//
// Both report every attempted task to a Sink exactly once and finish with a
// single Finished call carrying the run tally. Individual send failures never
// stop a run.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/mail"
)

var tracer = otel.Tracer("github.com/pure-golang/bulkmail/dispatch")

const (
	ModelSequential = string(campaign.DispatchSequential)
	ModelTimer      = string(campaign.DispatchTimer)
)

// Sink receives the result stream of a run. Timer runs call Outcome from
// several goroutines at once, so implementations must be safe for concurrent use.
type Sink interface {
	Outcome(ctx context.Context, o campaign.Outcome)
	Finished(ctx context.Context, t campaign.Tally)
}

type Options struct {
	Logger *slog.Logger
	// RunID labels the tally. Defaults to the run ID of the first task, so a
	// run with no tasks needs it set.
	RunID string
	// Now is the clock used for outcome timestamps and timer delays. Defaults to time.Now.
	Now func() time.Time
}

func (o *Options) logger() *slog.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return slog.Default().WithGroup("dispatch")
}

func (o *Options) runID() string {
	if o != nil {
		return o.RunID
	}
	return ""
}

func (o *Options) clock() func() time.Time {
	if o != nil && o.Now != nil {
		return o.Now
	}
	return time.Now
}

// worker holds what both strategies need to attempt one task.
type worker struct {
	model  string
	sender mail.Sender
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
	runID  string
}

func newWorker(model string, sender mail.Sender, sink Sink, opts *Options) worker {
	if sink == nil {
		sink = Discard
	}
	return worker{
		model:  model,
		sender: sender,
		sink:   sink,
		logger: opts.logger(),
		now:    opts.clock(),
		runID:  opts.runID(),
	}
}

// attempt sends one task and reports its outcome to the sink.
func (w worker) attempt(ctx context.Context, task campaign.Task) campaign.Outcome {
	ctx, span := tracer.Start(ctx, "Dispatch.Task", trace.WithAttributes(
		attribute.String("dispatch.model", w.model),
		attribute.String("campaign.run_id", task.RunID),
		attribute.Int("campaign.task_index", task.Index),
		attribute.String("smtp.host", task.Credential.Host),
	))
	defer span.End()

	res := w.send(ctx, task)
	o := campaign.NewOutcome(task, res, w.now())

	if o.OK {
		span.SetStatus(codes.Ok, "")
		w.logger.Debug("sent", "index", o.Index, "to", o.Recipient, "duration", o.Duration)
	} else {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, o.Error)
		w.logger.Warn("send failed", "index", o.Index, "to", o.Recipient, "error", o.Error)
	}
	outcomesTotal.WithLabelValues(w.model, o.Status).Inc()

	w.sink.Outcome(context.WithoutCancel(ctx), o)
	return o
}

// send converts a panicking sender into a failed result.
func (w worker) send(ctx context.Context, task campaign.Task) (res mail.Result) {
	start := w.now()
	defer func() {
		if r := recover(); r != nil {
			res = mail.Failure(errors.Errorf("panic: %v", r), w.now().Sub(start))
		}
	}()
	return w.sender.Send(ctx, task.Server(), task.Email())
}

func (w worker) newTally(tasks []campaign.Task) campaign.Tally {
	t := campaign.Tally{RunID: w.runID, Total: len(tasks)}
	if t.RunID == "" && len(tasks) > 0 {
		t.RunID = tasks[0].RunID
	}
	return t
}
