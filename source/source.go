// Package source loads the pools a campaign samples from out of a data directory.
//
// Layout under Loader.Dir:
//
//	leads/<name>.xlsx          or leads/<name>.csv
//	smtps/<name>.xlsx          or smtps/<name>.csv
//	subjects/<name>.txt
//	messages/<name>/*          one body per file
//	attachments/<name>/*       or attachments/<name>.txt with one ref per line
//	proxies/<name>.txt
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/logger"
)

var tracer = otel.Tracer("github.com/pure-golang/bulkmail/source")

// ErrBadListName is reported for list names that would escape their directory.
var ErrBadListName = errors.New("bad list name")

// Selection names the list to use for each pool. Attachments and Proxies are optional.
type Selection struct {
	Leads       string
	SMTPs       string
	Subjects    string
	Messages    string
	Attachments string
	Proxies     string
}

// SelectionOf returns the lists chosen in settings.
func SelectionOf(s campaign.Settings) Selection {
	return Selection{
		Leads:       s.Leads,
		SMTPs:       s.SMTPs,
		Subjects:    s.Subjects,
		Messages:    s.Messages,
		Attachments: s.Attachments,
		Proxies:     s.Proxies,
	}
}

type Loader struct {
	Dir string
}

// Load reads every selected list. Any missing or malformed list is a
// *campaign.ConfigError naming the pool.
func (l Loader) Load(ctx context.Context, sel Selection) (campaign.Pools, error) {
	ctx, span := tracer.Start(ctx, "Loader.Load")
	defer span.End()

	pools, err := l.load(ctx, sel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return campaign.Pools{}, err
	}

	span.SetAttributes(
		attribute.Int("pool.leads", len(pools.Recipients)),
		attribute.Int("pool.smtps", len(pools.Credentials)),
		attribute.Int("pool.subjects", len(pools.Subjects)),
		attribute.Int("pool.messages", len(pools.Messages)),
		attribute.Int("pool.attachments", len(pools.Attachments)),
		attribute.Int("pool.proxies", len(pools.Proxies)),
	)
	span.SetStatus(codes.Ok, "")

	logger.FromContext(ctx).Info("pools loaded",
		"leads", len(pools.Recipients),
		"smtps", len(pools.Credentials),
		"subjects", len(pools.Subjects),
		"messages", len(pools.Messages),
		"attachments", len(pools.Attachments),
		"proxies", len(pools.Proxies),
	)
	return pools, nil
}

func (l Loader) load(ctx context.Context, sel Selection) (campaign.Pools, error) {
	var (
		p   campaign.Pools
		err error
	)
	steps := []struct {
		field    string
		name     string
		optional bool
		read     func(name string) error
	}{
		{"leads", sel.Leads, false, func(n string) error {
			p.Recipients, err = readLeads(l.sheet("leads", n))
			return err
		}},
		{"smtps", sel.SMTPs, false, func(n string) error {
			p.Credentials, err = readSMTPs(l.sheet("smtps", n))
			return err
		}},
		{"subjects", sel.Subjects, false, func(n string) error {
			p.Subjects, err = readLines(l.path("subjects", n+".txt"))
			return err
		}},
		{"messages", sel.Messages, false, func(n string) error {
			p.Messages, err = readBodies(l.path("messages", n))
			return err
		}},
		{"attachments", sel.Attachments, true, func(n string) error {
			p.Attachments, err = l.readAttachments(n)
			return err
		}},
		{"proxies", sel.Proxies, true, func(n string) error {
			p.Proxies, err = readLines(l.path("proxies", n+".txt"))
			return err
		}},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return campaign.Pools{}, err
		}
		if s.name == "" {
			if s.optional {
				continue
			}
			return campaign.Pools{}, &campaign.ConfigError{Field: s.field, Err: errors.Wrap(campaign.ErrEmptyPool, "no list selected")}
		}
		if err := checkName(s.name); err != nil {
			return campaign.Pools{}, &campaign.ConfigError{Field: s.field, Err: err}
		}
		if err := s.read(s.name); err != nil {
			return campaign.Pools{}, &campaign.ConfigError{Field: s.field, Err: err}
		}
	}
	return p, nil
}

func (l Loader) path(parts ...string) string {
	return filepath.Join(append([]string{l.Dir}, parts...)...)
}

// sheet returns the workbook for a list when one exists, its CSV file otherwise.
func (l Loader) sheet(dir, name string) string {
	if p := l.path(dir, name+".xlsx"); fileExists(p) {
		return p
	}
	return l.path(dir, name+".csv")
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// readAttachments prefers the directory form and falls back to the ref list.
func (l Loader) readAttachments(name string) ([]string, error) {
	dir := l.path("attachments", name)
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		return listFiles(dir)
	}

	refs, err := readLines(l.path("attachments", name+".txt"))
	if err != nil {
		return nil, err
	}
	base := l.path("attachments")
	for i, r := range refs {
		if !strings.Contains(r, "://") && !filepath.IsAbs(r) {
			refs[i] = filepath.Join(base, r)
		}
	}
	return refs, nil
}

func checkName(name string) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errors.Wrapf(ErrBadListName, "%q", name)
	}
	return nil
}

// Credentials loads only the SMTP list, for pool verification.
func (l Loader) Credentials(ctx context.Context, name string) ([]campaign.SMTPCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &campaign.ConfigError{Field: "smtps", Err: errors.Wrap(campaign.ErrEmptyPool, "no list selected")}
	}
	if err := checkName(name); err != nil {
		return nil, &campaign.ConfigError{Field: "smtps", Err: err}
	}
	creds, err := readSMTPs(l.sheet("smtps", name))
	if err != nil {
		return nil, &campaign.ConfigError{Field: "smtps", Err: err}
	}
	return creds, nil
}
