package minio

import "time"

// Config contains S3-compatible storage connection configuration.
// Works with MinIO, AWS S3 and other S3-compatible providers.
type Config struct {
	Endpoint           string        `envconfig:"S3_ENDPOINT" required:"true"` // host:port, no scheme
	AccessKey          string        `envconfig:"S3_ACCESS_KEY" required:"true"`
	SecretKey          string        `envconfig:"S3_SECRET_KEY" required:"true"`
	Region             string        `envconfig:"S3_REGION" default:"us-east-1"`
	Secure             bool          `envconfig:"S3_SECURE" default:"true"`
	Timeout            time.Duration `envconfig:"S3_TIMEOUT" default:"30s"`
	InsecureSkipVerify bool          `envconfig:"S3_INSECURE_SKIP_VERIFY" default:"false"` // TLS without certificate checks
}
