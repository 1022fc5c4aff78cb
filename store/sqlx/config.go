package sqlx

import (
	"fmt"
	"time"
)

// Config holds the PostgreSQL connection parameters.
type Config struct {
	Host            string        `envconfig:"POSTGRES_HOST" required:"true"`
	Port            int           `envconfig:"POSTGRES_PORT" default:"5432"`
	User            string        `envconfig:"POSTGRES_USER" required:"true"`
	Password        string        `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database        string        `envconfig:"POSTGRES_DB_NAME" required:"true"`
	SSLMode         string        `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	ConnectTimeout  int           `envconfig:"POSTGRES_CONNECT_TIMEOUT" default:"5"` // seconds
	MaxOpenConns    int           `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime time.Duration `envconfig:"POSTGRES_CONN_MAX_IDLE_TIME" default:"10m"`
	QueryTimeout    time.Duration `envconfig:"POSTGRES_QUERY_TIMEOUT" default:"10s"`
}

// DSN returns the lib/pq key=value connection string.
func (c Config) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, quote(c.Password), c.Database, c.SSLMode)
	if c.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", c.ConnectTimeout)
	}
	return dsn + " application_name=bulkmail"
}

// quote escapes a value for the key=value DSN format.
func quote(v string) string {
	out := make([]byte, 0, len(v)+2)
	out = append(out, '\'')
	for i := 0; i < len(v); i++ {
		if v[i] == '\'' || v[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, v[i])
	}
	return string(append(out, '\''))
}
