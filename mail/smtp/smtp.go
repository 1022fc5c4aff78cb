package smtp

import "time"

// Config contains transport settings shared by every server the sender talks to.
// Host, port and credentials travel with each call in mail.Server.
type Config struct {
	HelloName     string        `envconfig:"SMTP_HELLO_NAME" default:"localhost"` // EHLO name
	DialTimeout   time.Duration `envconfig:"SMTP_DIAL_TIMEOUT" default:"30s"`
	VerifyTimeout time.Duration `envconfig:"SMTP_VERIFY_TIMEOUT" default:"10s"`
	SendTimeout   time.Duration `envconfig:"SMTP_SEND_TIMEOUT" default:"2m"` // whole session, 0 disables
	Insecure      bool          `envconfig:"SMTP_INSECURE" default:"false"`  // skip certificate verification
}

const (
	defaultHelloName     = "localhost"
	defaultDialTimeout   = 30 * time.Second
	defaultVerifyTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.HelloName == "" {
		c.HelloName = defaultHelloName
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = defaultVerifyTimeout
	}
	return c
}
