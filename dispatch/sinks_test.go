package dispatch

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pure-golang/bulkmail/campaign"
)

func TestMulti(t *testing.T) {
	var got []string
	rec := func(name string) Sink {
		return Funcs{
			OnOutcome:  func(context.Context, campaign.Outcome) { got = append(got, name+":outcome") },
			OnFinished: func(context.Context, campaign.Tally) { got = append(got, name+":finished") },
		}
	}

	s := Multi(rec("a"), nil, rec("b"))
	s.Outcome(context.Background(), campaign.Outcome{})
	s.Finished(context.Background(), campaign.Tally{})

	assert.Equal(t, []string{"a:outcome", "b:outcome", "a:finished", "b:finished"}, got)
}

func TestFuncs_NilFunctions(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.Outcome(context.Background(), campaign.Outcome{})
		Discard.Finished(context.Background(), campaign.Tally{})
	})
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.Outcome(context.Background(), campaign.Outcome{Index: 0, OK: true})
	c.Outcome(context.Background(), campaign.Outcome{Index: 1})

	outcomes := c.Outcomes()
	outcomes[0].Index = 99
	assert.Equal(t, 0, c.Outcomes()[0].Index)

	select {
	case <-c.Done():
		t.Fatal("done before Finished")
	default:
	}

	c.Finished(context.Background(), campaign.Tally{Sent: 1, Failed: 1})
	c.Finished(context.Background(), campaign.Tally{Sent: 1, Failed: 1})
	<-c.Done()

	tally, finished := c.Tally()
	assert.Equal(t, campaign.Tally{Sent: 1, Failed: 1}, tally)
	assert.Equal(t, 2, finished)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := LogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	s.Outcome(context.Background(), campaign.Outcome{RunID: "r", Recipient: "a@example.com", OK: true, Status: "sent"})
	s.Outcome(context.Background(), campaign.Outcome{RunID: "r", Recipient: "b@example.com", Status: "failed", Error: "refused"})
	s.Finished(context.Background(), campaign.Tally{RunID: "r", Total: 2, Sent: 1, Failed: 1})

	out := buf.String()
	assert.Contains(t, out, `"level":"INFO","msg":"outcome"`)
	assert.Contains(t, out, `"to":"a@example.com"`)
	assert.Contains(t, out, `"level":"WARN","msg":"outcome"`)
	assert.Contains(t, out, `"error":"refused"`)
	assert.Contains(t, out, `"msg":"all done"`)
	assert.Contains(t, out, `"total":2`)
}
