// Package campaign turns loaded pools and campaign settings into an ordered list of
// independent send tasks, and defines the records that flow through a run.
package campaign

import (
	"time"

	"github.com/pure-golang/bulkmail/mail"
)

// Recipient is one lead. Fields holds every column of the lead record, including email.
type Recipient struct {
	Email  string
	Fields map[string]string
}

// SMTPCredential is one entry of the SMTP pool.
type SMTPCredential struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"-"`
	FromName    string `json:"from_name"`
	FromEmail   string `json:"from_email"`
	TLS         bool   `json:"tls"`
	ImplicitTLS bool   `json:"implicit_tls"`
}

// Server resolves the credential into a transport endpoint routed through proxy.
func (c SMTPCredential) Server(proxy string) mail.Server {
	return mail.Server{
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		Password:    c.Password,
		TLS:         c.TLS,
		ImplicitTLS: c.ImplicitTLS,
		Proxy:       proxy,
	}
}

// From returns the envelope sender. A credential without from_email sends as its username.
func (c SMTPCredential) From() mail.Address {
	addr := c.FromEmail
	if addr == "" {
		addr = c.Username
	}
	return mail.Address{Name: c.FromName, Address: addr}
}

// Pools are the resources a campaign samples from.
type Pools struct {
	Recipients  []Recipient
	Credentials []SMTPCredential
	Subjects    []string
	Messages    []string
	Attachments []string // optional
	Proxies     []string // optional
}

// Task is one fully resolved unit of send work. Tasks are values and are never
// mutated after assembly.
type Task struct {
	RunID       string
	Index       int // position in the schedule, skipped slots included
	Recipient   Recipient
	Credential  SMTPCredential
	Subject     string
	Body        string
	Attachments []string
	Proxy       string
	SendAt      time.Time
}

// Email renders the task as a message. Bodies are HTML.
func (t Task) Email() mail.Email {
	return mail.Email{
		From:        t.Credential.From(),
		To:          []mail.Address{{Address: t.Recipient.Email}},
		Subject:     t.Subject,
		HTML:        t.Body,
		Attachments: t.Attachments,
	}
}

// Server returns the endpoint the task is sent through.
func (t Task) Server() mail.Server {
	return t.Credential.Server(t.Proxy)
}

// Outcome is the recorded result of attempting one task.
type Outcome struct {
	RunID       string        `json:"run_id"`
	Index       int           `json:"index"`
	Recipient   string        `json:"recipient"`
	OK          bool          `json:"ok"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Host        string        `json:"smtp_host"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	At          time.Time     `json:"at"`
	Duration    time.Duration `json:"duration"`
}

// NewOutcome records res as the outcome of t, observed at.
func NewOutcome(t Task, res mail.Result, at time.Time) Outcome {
	return Outcome{
		RunID:       t.RunID,
		Index:       t.Index,
		Recipient:   t.Recipient.Email,
		OK:          res.OK,
		Status:      res.Status(),
		Error:       res.Error(),
		Host:        t.Credential.Host,
		ScheduledAt: t.SendAt,
		At:          at,
		Duration:    res.Duration,
	}
}

// Tally is the end-of-run summary. Total counts the tasks handed to the dispatcher.
type Tally struct {
	RunID    string `json:"run_id"`
	Total    int    `json:"total"`
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
	Dropped  int    `json:"dropped"`  // timer model: target time already passed
	Canceled int    `json:"canceled"` // never attempted because the run was canceled
}

// Add counts one outcome.
func (t *Tally) Add(o Outcome) {
	if o.OK {
		t.Sent++
	} else {
		t.Failed++
	}
}

// Attempted is the number of tasks that produced an outcome.
func (t Tally) Attempted() int {
	return t.Sent + t.Failed
}
