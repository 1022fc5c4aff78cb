// Package noop provides a mail.Sender that never touches the network.
// It records every attempt, which makes it the sender for dry runs and tests.
package noop

import (
	"context"
	"sync"
	"time"

	"github.com/pure-golang/bulkmail/mail"
)

var _ mail.Sender = (*Sender)(nil)

// Call is one recorded Send.
type Call struct {
	Server mail.Server
	Email  mail.Email
	At     time.Time
}

// FailFunc decides whether an attempt fails. A nil error means success.
type FailFunc func(server mail.Server, email mail.Email) error

// Sender is a no-op mail sender.
type Sender struct {
	mx       sync.Mutex
	fail     FailFunc
	delay    time.Duration
	calls    []Call
	verified []mail.Server
	closed   bool
}

// Option configures a Sender.
type Option func(*Sender)

// WithFailure scripts failures.
func WithFailure(fn FailFunc) Option {
	return func(s *Sender) { s.fail = fn }
}

// WithDelay makes each attempt take d, or less if the context ends first.
func WithDelay(d time.Duration) Option {
	return func(s *Sender) { s.delay = d }
}

// NewSender creates a new no-op Sender.
func NewSender(opts ...Option) *Sender {
	s := &Sender{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send records the attempt and reports success unless a failure is scripted.
func (n *Sender) Send(ctx context.Context, server mail.Server, email mail.Email) mail.Result {
	start := time.Now()
	if err := n.wait(ctx); err != nil {
		return mail.Failure(err, time.Since(start))
	}

	n.mx.Lock()
	if n.closed {
		n.mx.Unlock()
		return mail.Failure(mail.ErrSenderClosed, time.Since(start))
	}
	n.calls = append(n.calls, Call{Server: server, Email: email, At: start})
	fail := n.fail
	n.mx.Unlock()

	if fail != nil {
		if err := fail(server, email); err != nil {
			return mail.Failure(err, time.Since(start))
		}
	}
	return mail.Success(time.Since(start))
}

// Verify records the server and reports success unless a failure is scripted.
func (n *Sender) Verify(ctx context.Context, server mail.Server) mail.Result {
	start := time.Now()
	if err := n.wait(ctx); err != nil {
		return mail.Failure(err, time.Since(start))
	}

	n.mx.Lock()
	if n.closed {
		n.mx.Unlock()
		return mail.Failure(mail.ErrSenderClosed, time.Since(start))
	}
	n.verified = append(n.verified, server)
	fail := n.fail
	n.mx.Unlock()

	if fail != nil {
		if err := fail(server, mail.Email{}); err != nil {
			return mail.Failure(err, time.Since(start))
		}
	}
	return mail.Success(time.Since(start))
}

func (n *Sender) wait(ctx context.Context) error {
	if n.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(n.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Calls returns a copy of the recorded sends in call order.
func (n *Sender) Calls() []Call {
	n.mx.Lock()
	defer n.mx.Unlock()
	return append([]Call(nil), n.calls...)
}

// Verified returns a copy of the servers passed to Verify.
func (n *Sender) Verified() []mail.Server {
	n.mx.Lock()
	defer n.mx.Unlock()
	return append([]mail.Server(nil), n.verified...)
}

// Close marks the sender closed.
func (n *Sender) Close() error {
	n.mx.Lock()
	defer n.mx.Unlock()
	n.closed = true
	return nil
}
