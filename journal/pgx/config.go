package pgx

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config reads the same POSTGRES_* connection variables as the campaign store.
// The journal has its own pool size since a timer run appends from many goroutines.
type Config struct {
	User            string        `envconfig:"POSTGRES_USER" required:"true"`
	Password        string        `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Host            string        `envconfig:"POSTGRES_HOST" required:"true"`
	Port            int           `envconfig:"POSTGRES_PORT" default:"5432"`
	Name            string        `envconfig:"POSTGRES_DB_NAME" required:"true"`
	SSLMode         string        `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	CertPath        string        `envconfig:"POSTGRES_SSL_CERT_PATH"`
	MaxConns        int32         `envconfig:"POSTGRES_JOURNAL_MAX_CONNS" default:"8"`
	MaxConnLifeTime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"30m"`
	MaxConnIdleTime time.Duration `envconfig:"POSTGRES_CONN_MAX_IDLE_TIME" default:"10m"`
	// TraceLogLevel values: trace, debug, info, warn, error, none.
	TraceLogLevel string `envconfig:"POSTGRES_TRACE_LOG_LEVEL" default:"error"`
}

// URL returns the pgx connection URL. A root certificate forces verify-full.
func (c *Config) URL() *url.URL {
	q := url.Values{
		"timezone":         {"utc"},
		"application_name": {"bulkmail-journal"},
	}
	mode := c.SSLMode
	if mode == "" {
		mode = "disable"
	}
	if c.CertPath != "" {
		mode = "verify-full"
		q.Set("sslrootcert", c.CertPath)
	}
	q.Set("sslmode", mode)

	port := c.Port
	if port == 0 {
		port = 5432
	}

	return &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:     c.Name,
		RawQuery: q.Encode(),
	}
}
