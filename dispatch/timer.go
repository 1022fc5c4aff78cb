package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/mail"
)

// Timer sends every task at its target time. Each task gets its own one-shot
// timer, and fired sends run concurrently without ordering between them.
type Timer struct {
	w worker
}

func NewTimer(sender mail.Sender, sink Sink, opts *Options) *Timer {
	return &Timer{w: newWorker(ModelTimer, sender, sink, opts)}
}

// Schedule arms one timer per task. Delays are computed once, here: a task whose
// target time has already passed is dropped without a timer or an outcome.
//
// Canceling ctx cancels every unfired timer, like Pending.Cancel. A send that
// has started always runs to completion.
func (t *Timer) Schedule(ctx context.Context, tasks []campaign.Task) *Pending {
	return t.ScheduleFrom(ctx, tasks, t.w.now())
}

// ScheduleFrom is Schedule with delays measured from ref instead of the clock.
// A plan replayed from the instant it was generated keeps its immediate tasks.
func (t *Timer) ScheduleFrom(ctx context.Context, tasks []campaign.Task, ref time.Time) *Pending {
	p := &Pending{
		w:     t.w,
		tally: t.w.newTally(tasks),
		done:  make(chan struct{}),
	}
	logger := t.w.logger.With("run_id", p.tally.RunID, "model", ModelTimer)
	sendCtx := context.WithoutCancel(ctx)

	p.mu.Lock()
	for _, task := range tasks {
		delay := task.SendAt.Sub(ref)
		if delay < 0 {
			p.tally.Dropped++
			droppedTotal.Inc()
			logger.Warn("target time passed, task dropped",
				"index", task.Index, "to", task.Recipient.Email, "send_at", task.SendAt)
			continue
		}
		p.wg.Add(1)
		pendingTimers.Inc()
		p.timers = append(p.timers, time.AfterFunc(delay, func() { p.fire(sendCtx, task) }))
	}
	armed := len(p.timers)
	p.mu.Unlock()

	logger.Info("run scheduled", "tasks", p.tally.Total, "armed", armed, "dropped", p.tally.Dropped)

	stop := context.AfterFunc(ctx, func() { p.Cancel() })
	go func() {
		p.wg.Wait()
		stop()

		p.mu.Lock()
		tally := p.tally
		p.mu.Unlock()

		logger.Info("run finished",
			"sent", tally.Sent, "failed", tally.Failed, "dropped", tally.Dropped, "canceled", tally.Canceled)
		t.w.sink.Finished(sendCtx, tally)
		close(p.done)
	}()

	return p
}

// Pending is a scheduled timer run.
type Pending struct {
	w      worker
	wg     sync.WaitGroup
	mu     sync.Mutex
	timers []*time.Timer
	tally  campaign.Tally
	done   chan struct{}
}

func (p *Pending) fire(ctx context.Context, task campaign.Task) {
	defer p.wg.Done()
	pendingTimers.Dec()

	o := p.w.attempt(ctx, task)

	p.mu.Lock()
	p.tally.Add(o)
	p.mu.Unlock()
}

// Cancel stops every timer that has not fired yet and returns how many were
// stopped. Sends already started are unaffected. Safe to call more than once.
func (p *Pending) Cancel() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	stopped := 0
	for _, timer := range p.timers {
		if timer.Stop() {
			stopped++
			pendingTimers.Dec()
			p.wg.Done()
		}
	}
	p.timers = nil
	p.tally.Canceled += stopped

	return stopped
}

// Done is closed after the sink received Finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until every armed timer has either fired and finished its send
// or been canceled, and returns the run tally.
func (p *Pending) Wait() campaign.Tally {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tally
}
