//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/queue"
)

type KafkaSuite struct {
	suite.Suite
	container *kafkatc.KafkaContainer
	brokers   []string
}

func TestKafkaSuite(t *testing.T) {
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	ctx := context.Background()

	container, err := kafkatc.Run(ctx, "confluentinc/cp-kafka:7.6.0",
		kafkatc.WithClusterID("bulkmail-"+uuid.NewString()),
	)
	s.Require().NoError(err, "failed to start Kafka container")
	s.container = container

	s.brokers, err = container.Brokers(ctx)
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		conn, err := kafkago.Dial("tcp", s.brokers[0])
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 30*time.Second, time.Second)
}

func (s *KafkaSuite) TearDownSuite() {
	if s.container != nil {
		s.NoError(s.container.Terminate(context.Background()))
	}
}

func (s *KafkaSuite) TestSinkPublishesOutcome() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	topic := queue.TopicOutcomes + "." + uuid.NewString()
	pub := NewPublisher(Config{Brokers: s.brokers, WriteTimeout: 10 * time.Second, RequiredAcks: -1}, nil)
	defer pub.Close()

	o := campaign.Outcome{RunID: "r", Index: 1, Recipient: "a@example.com", OK: true, Status: "sent"}
	s.Require().NoError(pub.Publish(ctx, queue.Message{Topic: topic, Key: o.Recipient, Body: o}))

	reader := kafkago.NewReader(kafkago.ReaderConfig{Brokers: s.brokers, Topic: topic})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	s.Require().NoError(err)
	s.Equal("a@example.com", string(msg.Key))

	var got campaign.Outcome
	s.Require().NoError(json.Unmarshal(msg.Value, &got))
	s.Equal(o.Recipient, got.Recipient)
	s.True(got.OK)
}
