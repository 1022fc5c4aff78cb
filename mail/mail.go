package mail

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrSenderClosed is reported for any attempt made after Close.
	ErrSenderClosed = errors.New("sender is closed")
	// ErrUnsupportedProxy is reported when the proxy string names a scheme the
	// transport cannot tunnel SMTP through.
	ErrUnsupportedProxy = errors.New("unsupported proxy")
)

// Sender performs single synchronous SMTP attempts.
//
// Implementations never panic and never return a Go error: every failure,
// including a bad address, an unreadable server or a rejected login, is folded
// into the returned Result.
type Sender interface {
	// Send makes exactly one delivery attempt of email through server.
	Send(ctx context.Context, server Server, email Email) Result
	// Verify connects and authenticates against server without sending anything.
	Verify(ctx context.Context, server Server) Result
	io.Closer
}

// Server is a fully resolved SMTP endpoint plus the credentials and route used to reach it.
type Server struct {
	Host        string
	Port        int
	Username    string
	Password    string
	TLS         bool   // upgrade with STARTTLS after EHLO
	ImplicitTLS bool   // TLS from the first byte (port 465 style)
	Proxy       string // optional SOCKS5 route: host:port, user:pass@host:port or socks5://...
}

// Address returns host:port.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Email represents an email message.
type Email struct {
	// Envelope
	From    Address
	To      []Address
	Cc      []Address
	Bcc     []Address
	Subject string

	// Headers
	Headers map[string]string

	// Body
	Body string // Plain text body
	HTML string // HTML body (optional)

	// Attachments are local file paths. Paths that are not regular files are skipped.
	Attachments []string
}

// Address represents an email address.
type Address struct {
	Name    string // "John Doe"
	Address string // "john@example.com"
}

// Result is the outcome of one Send or Verify attempt.
type Result struct {
	OK       bool
	Err      error
	Duration time.Duration
}

// Success builds a successful Result.
func Success(d time.Duration) Result {
	return Result{OK: true, Duration: d}
}

// Failure builds a failed Result. A nil err is replaced with a generic one so a
// failed Result always carries a reason.
func Failure(err error, d time.Duration) Result {
	if err == nil {
		err = errors.New("send failed")
	}
	return Result{Err: err, Duration: d}
}

// Status is the short human readable form used in logs and outcome records.
func (r Result) Status() string {
	if r.OK {
		return "sent"
	}
	return "failed"
}

// Error returns the failure text, or "" for a success.
func (r Result) Error() string {
	if r.OK || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
