package dispatch

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/pure-golang/bulkmail/campaign"
)

// Discard drops everything.
var Discard Sink = Funcs{}

// Funcs adapts plain functions into a Sink. Nil functions are skipped.
type Funcs struct {
	OnOutcome  func(ctx context.Context, o campaign.Outcome)
	OnFinished func(ctx context.Context, t campaign.Tally)
}

func (f Funcs) Outcome(ctx context.Context, o campaign.Outcome) {
	if f.OnOutcome != nil {
		f.OnOutcome(ctx, o)
	}
}

func (f Funcs) Finished(ctx context.Context, t campaign.Tally) {
	if f.OnFinished != nil {
		f.OnFinished(ctx, t)
	}
}

// Multi fans every call out to sinks, in order.
func Multi(sinks ...Sink) Sink {
	return multi(slices.DeleteFunc(slices.Clone(sinks), func(s Sink) bool { return s == nil }))
}

type multi []Sink

func (m multi) Outcome(ctx context.Context, o campaign.Outcome) {
	for _, s := range m {
		s.Outcome(ctx, o)
	}
}

func (m multi) Finished(ctx context.Context, t campaign.Tally) {
	for _, s := range m {
		s.Finished(ctx, t)
	}
}

// Collector keeps every outcome of a run in memory.
type Collector struct {
	mu       sync.Mutex
	outcomes []campaign.Outcome
	tally    campaign.Tally
	finished int
	done     chan struct{}
	once     sync.Once
}

func NewCollector() *Collector {
	return &Collector{done: make(chan struct{})}
}

func (c *Collector) Outcome(_ context.Context, o campaign.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
}

func (c *Collector) Finished(_ context.Context, t campaign.Tally) {
	c.mu.Lock()
	c.tally = t
	c.finished++
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

// Outcomes returns a copy of the outcomes received so far, in arrival order.
func (c *Collector) Outcomes() []campaign.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.outcomes)
}

// Tally returns the tally passed to Finished and how many times Finished was called.
func (c *Collector) Tally() (campaign.Tally, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tally, c.finished
}

// Done is closed on the first Finished call.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// LogSink writes one record per outcome and one for the final tally.
func LogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return logSink{logger: logger}
}

type logSink struct {
	logger *slog.Logger
}

func (l logSink) Outcome(ctx context.Context, o campaign.Outcome) {
	attrs := []any{
		"run_id", o.RunID,
		"index", o.Index,
		"to", o.Recipient,
		"smtp_host", o.Host,
		"status", o.Status,
		"duration", o.Duration,
	}
	if o.OK {
		l.logger.InfoContext(ctx, "outcome", attrs...)
		return
	}
	l.logger.WarnContext(ctx, "outcome", append(attrs, "error", o.Error)...)
}

func (l logSink) Finished(ctx context.Context, t campaign.Tally) {
	l.logger.InfoContext(ctx, "all done",
		"run_id", t.RunID,
		"total", t.Total,
		"sent", t.Sent,
		"failed", t.Failed,
		"dropped", t.Dropped,
		"canceled", t.Canceled,
	)
}
