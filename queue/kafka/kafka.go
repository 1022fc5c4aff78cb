// Package kafka publishes run events to Kafka topics.
package kafka

import "time"

// Config holds the connection parameters.
type Config struct {
	Brokers      []string      `envconfig:"KAFKA_BROKERS" required:"true"` // e.g. localhost:9092
	WriteTimeout time.Duration `envconfig:"KAFKA_WRITE_TIMEOUT" default:"10s"`
	// RequiredAcks is -1 (all replicas), 0 (none) or 1 (leader).
	RequiredAcks int `envconfig:"KAFKA_REQUIRED_ACKS" default:"-1"`
}
