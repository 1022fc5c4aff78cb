package smtp

import (
	"context"
	"net"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"

	"github.com/pure-golang/bulkmail/mail"
)

// ContextDialer opens raw TCP connections. *net.Dialer satisfies it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// forward lets a ContextDialer act as the upstream of a SOCKS5 dialer.
type forward struct {
	ContextDialer
}

func (f forward) Dial(network, address string) (net.Conn, error) {
	return f.DialContext(context.Background(), network, address)
}

// dialerFor returns base, or a SOCKS5 dialer tunnelling through server.Proxy.
func dialerFor(base ContextDialer, server mail.Server) (ContextDialer, error) {
	if strings.TrimSpace(server.Proxy) == "" {
		return base, nil
	}

	u, err := mail.ParseProxy(server.Proxy)
	if err != nil {
		return nil, err
	}

	d, err := proxy.FromURL(u, forward{base})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create proxy dialer")
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.Wrapf(mail.ErrUnsupportedProxy, "dialer for %q has no context support", u.Scheme)
	}
	return cd, nil
}
