//go:build integration

package smtp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pure-golang/bulkmail/mail"
)

type MailhogSuite struct {
	suite.Suite
	container testcontainers.Container
	server    mail.Server
	apiURL    string
	sender    *Sender
}

func TestMailhogSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(MailhogSuite))
}

func (s *MailhogSuite) SetupSuite() {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mailhog/mailhog:latest",
			ExposedPorts: []string{"1025/tcp", "8025/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("1025/tcp"),
				wait.ForListeningPort("8025/tcp"),
			),
		},
		Started: true,
	})
	s.Require().NoError(err, "failed to start mailhog container")
	s.container = container

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	smtpPort, err := container.MappedPort(ctx, "1025")
	s.Require().NoError(err)
	apiPort, err := container.MappedPort(ctx, "8025")
	s.Require().NoError(err)

	port, err := strconv.Atoi(smtpPort.Port())
	s.Require().NoError(err)

	s.server = mail.Server{Host: host, Port: port}
	s.apiURL = fmt.Sprintf("http://%s:%s/api/v2/messages", host, apiPort.Port())
	s.sender = NewSender(Config{}, nil)
}

func (s *MailhogSuite) TearDownSuite() {
	if s.sender != nil {
		_ = s.sender.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *MailhogSuite) messageCount() int {
	resp, err := http.Get(s.apiURL) // #nosec G107 -- test container URL
	s.Require().NoError(err)
	defer resp.Body.Close()

	var body struct {
		Total int `json:"total"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	return body.Total
}

func (s *MailhogSuite) TestSend() {
	before := s.messageCount()

	res := s.sender.Send(context.Background(), s.server, mail.Email{
		From:    mail.Address{Name: "Campaign", Address: "campaign@example.com"},
		To:      []mail.Address{{Address: "lead@example.com"}},
		Subject: "Integration",
		Body:    "plain",
		HTML:    "<p>html</p>",
	})

	s.Require().True(res.OK, res.Error())
	s.Equal(before+1, s.messageCount())
}

func (s *MailhogSuite) TestSendWithAttachment() {
	path := filepath.Join(s.T().TempDir(), "brochure.txt")
	require.NoError(s.T(), os.WriteFile(path, []byte("brochure"), 0o600))

	res := s.sender.Send(context.Background(), s.server, mail.Email{
		From:        mail.Address{Address: "campaign@example.com"},
		To:          []mail.Address{{Address: "lead@example.com"}},
		Subject:     "Attachment",
		Body:        "see attached",
		Attachments: []string{path},
	})

	s.True(res.OK, res.Error())
}

func (s *MailhogSuite) TestVerify() {
	res := s.sender.Verify(context.Background(), s.server)
	s.True(res.OK, res.Error())
}
