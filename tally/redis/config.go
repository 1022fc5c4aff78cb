package redis

import "time"

// Config holds the Redis connection and retention parameters.
type Config struct {
	Addr            string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password        string        `envconfig:"REDIS_PASSWORD"`
	DB              int           `envconfig:"REDIS_DB" default:"0"`
	MaxRetries      int           `envconfig:"REDIS_MAX_RETRIES" default:"3"`
	MinRetryBackoff time.Duration `envconfig:"REDIS_MIN_RETRY_BACKOFF" default:"8ms"`
	MaxRetryBackoff time.Duration `envconfig:"REDIS_MAX_RETRY_BACKOFF" default:"512ms"`
	DialTimeout     time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout     time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout    time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
	PoolSize        int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	// KeyPrefix namespaces every key.
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"bulkmail"`
	// TTL is applied to a run's keys once it finishes. 0 keeps them forever.
	TTL time.Duration `envconfig:"REDIS_TALLY_TTL" default:"168h"`
}
