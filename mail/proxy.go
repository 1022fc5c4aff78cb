package mail

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ParseProxy normalizes a proxy pool entry into a SOCKS5 URL.
//
// Accepted forms are host:port, user:pass@host:port and the same with a socks5://
// or socks5h:// scheme. Any other scheme yields ErrUnsupportedProxy: SMTP cannot be
// tunnelled through a plain HTTP proxy.
func ParseProxy(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty proxy")
	}
	if !strings.Contains(raw, "://") {
		raw = "socks5://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse proxy")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	switch u.Scheme {
	case "socks5", "socks5h":
	default:
		return nil, errors.Wrapf(ErrUnsupportedProxy, "scheme %q", u.Scheme)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid proxy address %q", u.Host)
	}
	if host == "" || port == "" {
		return nil, errors.Errorf("invalid proxy address %q", u.Host)
	}

	return u, nil
}
