package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/mail/noop"
)

func TestTimer_PastTasksAreDropped(t *testing.T) {
	base := time.Now()
	sender := noop.NewSender()
	sink := NewCollector()
	droppedBefore := testutil.ToFloat64(droppedTotal)

	tasks := makeTasks(4, func(i int) time.Time { return base.Add(-time.Duration(i+1) * time.Second) })

	var pending *Pending
	require.NotPanics(t, func() {
		pending = NewTimer(sender, sink, fixedClock(base)).Schedule(context.Background(), tasks)
	})
	tally := pending.Wait()

	assert.Empty(t, sender.Calls())
	assert.Empty(t, sink.Outcomes())
	assert.Equal(t, campaign.Tally{RunID: "run-1", Total: 4, Dropped: 4}, tally)
	assert.Equal(t, 0, pending.Cancel())
	assert.Equal(t, droppedBefore+4, testutil.ToFloat64(droppedTotal))
	_, finished := sink.Tally()
	assert.Equal(t, 1, finished)
}

func TestTimer_DropsOnlyPastTasks(t *testing.T) {
	base := time.Now()
	sender := noop.NewSender()
	sink := NewCollector()
	tasks := makeTasks(4, func(i int) time.Time {
		if i%2 == 0 {
			return base.Add(-time.Minute)
		}
		return base.Add(10 * time.Millisecond)
	})

	tally := NewTimer(sender, sink, fixedClock(base)).Schedule(context.Background(), tasks).Wait()

	assert.Equal(t, campaign.Tally{RunID: "run-1", Total: 4, Sent: 2, Dropped: 2}, tally)
	indexes := []int{}
	for _, o := range sink.Outcomes() {
		indexes = append(indexes, o.Index)
	}
	assert.ElementsMatch(t, []int{1, 3}, indexes)
}

func TestTimer_ScheduleFromReference(t *testing.T) {
	anchor := time.Now().Add(-time.Hour)
	sender := noop.NewSender()
	tasks := makeTasks(3, func(i int) time.Time { return anchor.Add(time.Duration(i) * time.Millisecond) })

	tally := NewTimer(sender, NewCollector(), quiet).ScheduleFrom(context.Background(), tasks, anchor).Wait()

	assert.Equal(t, campaign.Tally{RunID: "run-1", Total: 3, Sent: 3}, tally)
	assert.Len(t, sender.Calls(), 3)
}

func TestTimer_FiresInWallClockOrder(t *testing.T) {
	base := time.Now()
	delays := []time.Duration{300 * time.Millisecond, 0, 150 * time.Millisecond}
	sink := NewCollector()
	tasks := makeTasks(3, func(i int) time.Time { return base.Add(delays[i]) })

	tally := NewTimer(noop.NewSender(), sink, fixedClock(base)).Schedule(context.Background(), tasks).Wait()

	assert.Equal(t, 3, tally.Sent)
	outcomes := sink.Outcomes()
	require.Len(t, outcomes, 3)
	assert.Equal(t, []int{1, 2, 0}, []int{outcomes[0].Index, outcomes[1].Index, outcomes[2].Index})
	assert.GreaterOrEqual(t, time.Since(base), 300*time.Millisecond)
}

func TestTimer_FiresRunConcurrently(t *testing.T) {
	base := time.Now()
	sender := noop.NewSender(noop.WithDelay(200 * time.Millisecond))
	sink := NewCollector()
	tasks := makeTasks(5, func(int) time.Time { return base })

	start := time.Now()
	tally := NewTimer(sender, sink, fixedClock(base)).Schedule(context.Background(), tasks).Wait()

	assert.Equal(t, 5, tally.Sent)
	assert.Less(t, time.Since(start), 5*200*time.Millisecond)
}

func TestTimer_CancelStopsUnfiredTimers(t *testing.T) {
	base := time.Now()
	sender := noop.NewSender()
	sink := NewCollector()
	tasks := makeTasks(3, func(int) time.Time { return base.Add(time.Hour) })

	pending := NewTimer(sender, sink, fixedClock(base)).Schedule(context.Background(), tasks)
	assert.Equal(t, 3, pending.Cancel())
	assert.Equal(t, 0, pending.Cancel())

	tally := pending.Wait()
	assert.Equal(t, campaign.Tally{RunID: "run-1", Total: 3, Canceled: 3}, tally)
	assert.Empty(t, sender.Calls())
	assert.Empty(t, sink.Outcomes())
	_, finished := sink.Tally()
	assert.Equal(t, 1, finished)
}

func TestTimer_ContextCancelStopsUnfiredTimers(t *testing.T) {
	base := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	sink := NewCollector()
	tasks := makeTasks(2, func(int) time.Time { return base.Add(time.Hour) })

	pending := NewTimer(noop.NewSender(), sink, fixedClock(base)).Schedule(ctx, tasks)
	cancel()

	select {
	case <-pending.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after cancel")
	}
	assert.Equal(t, 2, pending.Wait().Canceled)
}

func TestTimer_CancelLeavesFiredSendRunning(t *testing.T) {
	base := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	sender := newBlockingSender()
	sink := NewCollector()
	tasks := makeTasks(2, func(i int) time.Time { return base.Add(time.Duration(i) * time.Hour) })

	pending := NewTimer(sender, sink, fixedClock(base)).Schedule(ctx, tasks)
	assert.Equal(t, "user0@example.com", <-sender.started)

	cancel()
	require.Eventually(t, func() bool {
		pending.mu.Lock()
		defer pending.mu.Unlock()
		return pending.tally.Canceled == 1
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-pending.Done():
		t.Fatal("run finished while a fired send was in flight")
	default:
	}

	close(sender.release)
	tally := pending.Wait()
	assert.Equal(t, campaign.Tally{RunID: "run-1", Total: 2, Sent: 1, Canceled: 1}, tally)
	assert.Equal(t, []bool{true}, sender.ctxOK)
}

func TestTimer_Empty(t *testing.T) {
	sink := NewCollector()

	tally := NewTimer(noop.NewSender(), sink, quiet).Schedule(context.Background(), nil).Wait()

	assert.Equal(t, campaign.Tally{}, tally)
	_, finished := sink.Tally()
	assert.Equal(t, 1, finished)
}

func TestTimer_EmptyKeepsRunID(t *testing.T) {
	sink := NewCollector()
	opts := &Options{Logger: quiet.Logger, RunID: "run-7"}

	tally := NewTimer(noop.NewSender(), sink, opts).Schedule(context.Background(), nil).Wait()

	assert.Equal(t, campaign.Tally{RunID: "run-7"}, tally)
	got, _ := sink.Tally()
	assert.Equal(t, "run-7", got.RunID)
}

func TestTimer_PanicBecomesFailedOutcome(t *testing.T) {
	base := time.Now()
	sender := panicSender{boom: map[string]bool{"user0@example.com": true}}
	sink := NewCollector()

	tally := NewTimer(sender, sink, fixedClock(base)).Schedule(context.Background(), makeTasks(2, func(int) time.Time { return base })).Wait()

	assert.Equal(t, 1, tally.Sent)
	assert.Equal(t, 1, tally.Failed)
	for _, o := range sink.Outcomes() {
		if o.Index == 0 {
			assert.Equal(t, "panic: boom", o.Error)
		}
	}
}

func TestTimer_PendingGaugeReturnsToZero(t *testing.T) {
	base := time.Now()
	before := testutil.ToFloat64(pendingTimers)

	pending := NewTimer(noop.NewSender(), nil, fixedClock(base)).Schedule(context.Background(),
		makeTasks(3, func(i int) time.Time { return base.Add(time.Duration(i) * time.Hour) }))
	pending.Cancel()
	pending.Wait()

	assert.Equal(t, before, testutil.ToFloat64(pendingTimers))
}
