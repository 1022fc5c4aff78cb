// Package rabbitmq publishes run events to a RabbitMQ topic exchange.
package rabbitmq

import "time"

type Config struct {
	URL string `envconfig:"RABBITMQ_URL" required:"true"`
	// Exchange is declared as a durable topic exchange; message topics are routing keys.
	Exchange string `envconfig:"RABBITMQ_EXCHANGE" default:"bulkmail.events"`
	// Heartbeat of the connection; a negative value disables it.
	Heartbeat      time.Duration `envconfig:"RABBITMQ_HEARTBEAT" default:"10s"`
	ConnectionName string        `envconfig:"RABBITMQ_CONNECTION_NAME" default:"bulkmail"`
}
