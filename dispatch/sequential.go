package dispatch

import (
	"context"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/mail"
)

// Sequential sends tasks one after another on a single worker, in task order.
// Target send times are not waited on.
type Sequential struct {
	w worker
}

func NewSequential(sender mail.Sender, sink Sink, opts *Options) *Sequential {
	return &Sequential{w: newWorker(ModelSequential, sender, sink, opts)}
}

// Run dispatches tasks and blocks until the run finished.
func (s *Sequential) Run(ctx context.Context, tasks []campaign.Task) campaign.Tally {
	return s.Start(ctx, tasks).Wait()
}

// Start queues tasks for the worker and returns immediately. Canceling ctx
// stops the run before the next task; the send in flight sees the canceled
// context and is reported like any other attempt. Tasks never started are
// counted as canceled.
func (s *Sequential) Start(ctx context.Context, tasks []campaign.Task) *Run {
	queue := make(chan campaign.Task, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	r := &Run{done: make(chan struct{})}
	go s.work(ctx, queue, s.w.newTally(tasks), r)
	return r
}

func (s *Sequential) work(ctx context.Context, queue <-chan campaign.Task, tally campaign.Tally, r *Run) {
	defer close(r.done)

	logger := s.w.logger.With("run_id", tally.RunID, "model", ModelSequential)
	logger.Info("run started", "tasks", tally.Total)

	for task := range queue {
		if ctx.Err() != nil {
			tally.Canceled++
			continue
		}
		tally.Add(s.w.attempt(ctx, task))
	}

	if tally.Canceled > 0 {
		logger.Warn("run canceled", "canceled", tally.Canceled)
	}
	logger.Info("run finished", "sent", tally.Sent, "failed", tally.Failed)

	r.tally = tally
	s.w.sink.Finished(context.WithoutCancel(ctx), tally)
}

// Run is a sequential run in progress.
type Run struct {
	done  chan struct{}
	tally campaign.Tally
}

// Done is closed after the sink received Finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finished and returns its tally.
func (r *Run) Wait() campaign.Tally {
	<-r.done
	return r.tally
}
