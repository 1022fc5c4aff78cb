package smtp

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/smtp"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bulkmail/mail"
)

var (
	// ErrStartTLSUnsupported is returned when TLS is requested but the server does not offer STARTTLS.
	ErrStartTLSUnsupported = errors.New("server does not support STARTTLS")
	// ErrAuthUnsupported is returned when credentials are set but the server does not offer AUTH.
	ErrAuthUnsupported = errors.New("server does not support AUTH")
)

var _ mail.Sender = (*Sender)(nil)

// Sender implements mail.Sender using net/smtp. One connection is opened per attempt,
// so a single Sender is safe for concurrent use across many servers.
type Sender struct {
	mx        sync.RWMutex
	cfg       Config
	dialer    ContextDialer
	tlsConfig *tls.Config
	logger    *slog.Logger
	closed    bool
}

// SenderOptions contains options for creating a Sender.
type SenderOptions struct {
	Logger *slog.Logger
	// Dialer opens the TCP connection, or the connection to the proxy when one is set.
	Dialer ContextDialer
	// TLSConfig is the base TLS configuration; ServerName is set per server.
	TLSConfig *tls.Config
}

// NewSender creates a new SMTP Sender.
func NewSender(cfg Config, options *SenderOptions) *Sender {
	cfg = cfg.withDefaults()
	if options == nil {
		options = &SenderOptions{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default().WithGroup("smtp")
	}
	if options.Dialer == nil {
		options.Dialer = &net.Dialer{Timeout: cfg.DialTimeout}
	}

	return &Sender{
		cfg:       cfg,
		dialer:    options.Dialer,
		tlsConfig: options.TLSConfig,
		logger:    options.Logger,
	}
}

// Send makes one delivery attempt of email through server.
func (s *Sender) Send(ctx context.Context, server mail.Server, email mail.Email) (res mail.Result) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.host", server.Host),
		attribute.Int("smtp.port", server.Port),
		attribute.Bool("smtp.tls", server.TLS),
		attribute.Bool("smtp.implicit_tls", server.ImplicitTLS),
		attribute.Bool("smtp.proxy", server.Proxy != ""),
		attribute.String("smtp.from", email.From.Address),
		attribute.Int("smtp.to_count", len(email.To)),
		attribute.Int("smtp.attachments", len(email.Attachments)),
	)

	defer func() {
		if r := recover(); r != nil {
			res = mail.Failure(errors.Errorf("smtp send panicked: %v", r), time.Since(start))
		}
		recordResult(span, res)
		observe("send", res)
	}()

	if err := s.send(ctx, server, email); err != nil {
		s.logger.Debug("send failed", "host", server.Host, "error", err)
		return mail.Failure(err, time.Since(start))
	}
	return mail.Success(time.Since(start))
}

func (s *Sender) send(ctx context.Context, server mail.Server, email mail.Email) error {
	if s.isClosed() {
		return mail.ErrSenderClosed
	}

	from := email.From.Address
	if from == "" {
		return errors.New("no from address specified")
	}
	rcpts := envelopeRecipients(email)
	if len(rcpts) == 0 {
		return errors.New("no recipients specified")
	}

	msg, err := buildMessage(email, time.Now())
	if err != nil {
		return errors.Wrap(err, "failed to build message")
	}

	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()
	}

	return s.session(ctx, server, func(c *smtp.Client) error {
		if err := c.Mail(from); err != nil {
			return errors.Wrap(err, "failed to set sender")
		}
		for _, addr := range rcpts {
			if err := c.Rcpt(addr); err != nil {
				return errors.Wrapf(err, "failed to set recipient: %s", addr)
			}
		}

		w, err := c.Data()
		if err != nil {
			return errors.Wrap(err, "failed to get data writer")
		}
		if _, err := w.Write(msg); err != nil {
			_ = w.Close()
			return errors.Wrap(err, "failed to write message")
		}
		return errors.Wrap(w.Close(), "message rejected")
	})
}

// Verify connects, negotiates TLS and authenticates without sending anything.
func (s *Sender) Verify(ctx context.Context, server mail.Server) (res mail.Result) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "SMTP.Verify", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.host", server.Host),
		attribute.Int("smtp.port", server.Port),
		attribute.Bool("smtp.tls", server.TLS),
		attribute.Bool("smtp.implicit_tls", server.ImplicitTLS),
		attribute.Bool("smtp.proxy", server.Proxy != ""),
	)

	defer func() {
		if r := recover(); r != nil {
			res = mail.Failure(errors.Errorf("smtp verify panicked: %v", r), time.Since(start))
		}
		recordResult(span, res)
		observe("verify", res)
	}()

	if s.isClosed() {
		return mail.Failure(mail.ErrSenderClosed, time.Since(start))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.VerifyTimeout)
	defer cancel()

	if err := s.session(ctx, server, nil); err != nil {
		return mail.Failure(err, time.Since(start))
	}
	return mail.Success(time.Since(start))
}

// session dials server, greets, upgrades to TLS, authenticates, runs fn and quits.
func (s *Sender) session(ctx context.Context, server mail.Server, fn func(*smtp.Client) error) (err error) {
	defer func() {
		if err != nil && ctx.Err() != nil {
			err = errors.Wrap(ctx.Err(), err.Error())
		}
	}()

	if server.Host == "" {
		return errors.New("no smtp host specified")
	}
	if server.Port <= 0 || server.Port > 65535 {
		return errors.Errorf("invalid smtp port %d", server.Port)
	}

	dialer, err := dialerFor(s.dialer, server)
	if err != nil {
		return err
	}

	addr := server.Address()
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	cancel()
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", addr)
	}

	// Cancellation or deadline unblocks any pending read or write.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if server.ImplicitTLS {
		tc := tls.Client(conn, s.tlsFor(server.Host))
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return errors.Wrap(err, "tls handshake failed")
		}
		conn = tc
	}

	client, err := smtp.NewClient(conn, server.Host)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "failed to read server greeting")
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Hello(s.cfg.HelloName); err != nil {
		return errors.Wrap(err, "hello failed")
	}

	if server.TLS && !server.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return ErrStartTLSUnsupported
		}
		if err := client.StartTLS(s.tlsFor(server.Host)); err != nil {
			return errors.Wrap(err, "failed to start TLS")
		}
	}

	if server.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return ErrAuthUnsupported
		}
		if err := client.Auth(smtp.PlainAuth("", server.Username, server.Password, server.Host)); err != nil {
			return errors.Wrap(err, "failed to authenticate")
		}
	}

	if fn != nil {
		if err := fn(client); err != nil {
			return err
		}
	}

	// The server has already accepted the message at this point.
	if err := client.Quit(); err != nil {
		s.logger.Debug("quit failed", "host", server.Host, "error", err)
	}
	return nil
}

func (s *Sender) tlsFor(host string) *tls.Config {
	var cfg *tls.Config
	if s.tlsConfig != nil {
		cfg = s.tlsConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	cfg.ServerName = host
	if s.cfg.Insecure {
		cfg.InsecureSkipVerify = true // #nosec G402 -- controlled by config, user's responsibility
	}
	return cfg
}

func (s *Sender) isClosed() bool {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.closed
}

// Close marks the sender closed. Later attempts fail with mail.ErrSenderClosed.
func (s *Sender) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.closed = true
	return nil
}
