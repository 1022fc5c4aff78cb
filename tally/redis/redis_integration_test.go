//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/tally"
)

type RedisSuite struct {
	suite.Suite
	container testcontainers.Container
	store     *Store
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupSuite() {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	s.Require().NoError(err, "failed to start container")
	s.container = container

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(ctx, "6379")
	s.Require().NoError(err)

	s.store, err = Connect(ctx, Config{
		Addr:        fmt.Sprintf("%s:%s", host, port.Port()),
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "test",
		TTL:         time.Hour,
	}, nil)
	s.Require().NoError(err)
}

func (s *RedisSuite) TearDownSuite() {
	if s.store != nil {
		s.NoError(s.store.Close())
	}
	if s.container != nil {
		s.NoError(s.container.Terminate(context.Background()))
	}
}

func (s *RedisSuite) TestRecordAndFinish() {
	ctx := context.Background()

	_, err := s.store.Get(ctx, "run-a")
	s.ErrorIs(err, tally.ErrNotFound)

	s.Require().NoError(s.store.Record(ctx, campaign.Outcome{RunID: "run-a", Recipient: "a@example.com", OK: true}))
	s.Require().NoError(s.store.Record(ctx, campaign.Outcome{RunID: "run-a", Recipient: "b@example.com", Error: "refused"}))

	p, err := s.store.Get(ctx, "run-a")
	s.Require().NoError(err)
	s.False(p.Finished)
	s.Equal(1, p.Sent)
	s.Equal(1, p.Failed)
	s.Equal([]string{"b@example.com: refused"}, p.Failures)

	s.Require().NoError(s.store.Finish(ctx, campaign.Tally{RunID: "run-a", Total: 3, Sent: 1, Failed: 1, Dropped: 1}))
	p, err = s.store.Get(ctx, "run-a")
	s.Require().NoError(err)
	s.True(p.Finished)
	s.Equal(3, p.Total)
	s.Equal(1, p.Dropped)

	ttl, err := s.store.client.TTL(ctx, s.store.runKey("run-a")).Result()
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Minute)
}
