package campaign

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/pure-golang/bulkmail/mail"
)

func TestSMTPCredential_From(t *testing.T) {
	c := SMTPCredential{Username: "login@example.com", FromName: "Sales", FromEmail: "sales@example.com"}
	assert.Equal(t, mail.Address{Name: "Sales", Address: "sales@example.com"}, c.From())

	c.FromEmail = ""
	assert.Equal(t, mail.Address{Name: "Sales", Address: "login@example.com"}, c.From())
}

func TestTask_EmailAndServer(t *testing.T) {
	task := Task{
		Recipient: Recipient{Email: "ana@example.com"},
		Credential: SMTPCredential{
			Host: "smtp.example.com", Port: 587, Username: "u", Password: "p",
			FromName: "Sales", FromEmail: "sales@example.com", TLS: true,
		},
		Subject:     "Hi Ana",
		Body:        "<p>Hi</p>",
		Attachments: []string{"/tmp/a.pdf"},
		Proxy:       "10.0.0.1:1080",
	}

	email := task.Email()
	assert.Equal(t, mail.Address{Name: "Sales", Address: "sales@example.com"}, email.From)
	assert.Equal(t, []mail.Address{{Address: "ana@example.com"}}, email.To)
	assert.Equal(t, "Hi Ana", email.Subject)
	assert.Equal(t, "<p>Hi</p>", email.HTML)
	assert.Empty(t, email.Body)
	assert.Equal(t, []string{"/tmp/a.pdf"}, email.Attachments)

	assert.Equal(t, mail.Server{
		Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", TLS: true, Proxy: "10.0.0.1:1080",
	}, task.Server())
}

func TestNewOutcome(t *testing.T) {
	sendAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	at := sendAt.Add(time.Minute)
	task := Task{
		RunID:      "run-1",
		Index:      4,
		Recipient:  Recipient{Email: "ana@example.com"},
		Credential: SMTPCredential{Host: "smtp.example.com"},
		SendAt:     sendAt,
	}

	ok := NewOutcome(task, mail.Success(2*time.Second), at)
	assert.Equal(t, Outcome{
		RunID: "run-1", Index: 4, Recipient: "ana@example.com", OK: true, Status: "sent",
		Host: "smtp.example.com", ScheduledAt: sendAt, At: at, Duration: 2 * time.Second,
	}, ok)

	failed := NewOutcome(task, mail.Failure(errors.New("535 auth failed"), time.Second), at)
	assert.False(t, failed.OK)
	assert.Equal(t, "failed", failed.Status)
	assert.Equal(t, "535 auth failed", failed.Error)
}

func TestTally_Add(t *testing.T) {
	var tally Tally
	tally.Add(Outcome{OK: true})
	tally.Add(Outcome{OK: false})
	tally.Add(Outcome{OK: true})

	assert.Equal(t, 2, tally.Sent)
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, 3, tally.Attempted())
}

func TestConfigError(t *testing.T) {
	err := configError("messages", ErrEmptyPool, "%s", "messages")

	assert.Equal(t, "campaign config messages: messages: pool is empty", err.Error())
	assert.ErrorIs(t, err, ErrEmptyPool)
}
