package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/mail"
)

var quiet = &Options{Logger: slog.New(slog.DiscardHandler)}

func makeTasks(n int, sendAt func(i int) time.Time) []campaign.Task {
	tasks := make([]campaign.Task, n)
	for i := range tasks {
		tasks[i] = campaign.Task{
			RunID:      "run-1",
			Index:      i,
			Recipient:  campaign.Recipient{Email: fmt.Sprintf("user%d@example.com", i)},
			Credential: campaign.SMTPCredential{Host: "smtp.example.com", Port: 587, Username: "sender@example.com"},
			Subject:    "hello",
			Body:       "<p>hi</p>",
			SendAt:     sendAt(i),
		}
	}
	return tasks
}

func fixedClock(t time.Time) *Options {
	return &Options{Logger: quiet.Logger, Now: func() time.Time { return t }}
}

// panicSender panics for the recipients listed in boom.
type panicSender struct {
	boom map[string]bool
}

func (p panicSender) Send(_ context.Context, _ mail.Server, email mail.Email) mail.Result {
	if p.boom[email.To[0].Address] {
		panic("boom")
	}
	return mail.Success(time.Millisecond)
}

func (panicSender) Verify(context.Context, mail.Server) mail.Result { return mail.Success(0) }
func (panicSender) Close() error                                    { return nil }

// blockingSender holds every send until release is closed.
type blockingSender struct {
	started chan string
	release chan struct{}

	mu    sync.Mutex
	ctxOK []bool
}

func newBlockingSender() *blockingSender {
	return &blockingSender{started: make(chan string, 16), release: make(chan struct{})}
}

func (b *blockingSender) Send(ctx context.Context, _ mail.Server, email mail.Email) mail.Result {
	b.started <- email.To[0].Address
	<-b.release
	b.mu.Lock()
	b.ctxOK = append(b.ctxOK, ctx.Err() == nil)
	b.mu.Unlock()
	return mail.Success(0)
}

func (b *blockingSender) Verify(context.Context, mail.Server) mail.Result { return mail.Success(0) }
func (b *blockingSender) Close() error                                    { return nil }
