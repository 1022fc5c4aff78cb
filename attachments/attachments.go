// Package attachments resolves object storage attachment refs into local files
// before handing an email to the wrapped sender.
package attachments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/pure-golang/bulkmail/mail"
	"github.com/pure-golang/bulkmail/storage"
)

var _ mail.Sender = (*Sender)(nil)

// ErrNoStorage is the failure for a remote ref when no object store is configured.
var ErrNoStorage = errors.New("no object storage configured for remote attachment")

type Options struct {
	Logger *slog.Logger
	// CacheDir receives downloaded objects. Empty means a temporary directory
	// that Close removes.
	CacheDir string
}

// Sender decorates a mail.Sender. Each remote ref is downloaded at most once per
// Sender, concurrent sends of the same ref share one download.
type Sender struct {
	next    mail.Sender
	store   storage.Storage
	dir     string
	ownsDir bool
	logger  *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	files map[string]string
}

// New wraps next. store may be nil when every attachment is a local path.
func New(next mail.Sender, store storage.Storage, opts *Options) (*Sender, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Sender{
		next:   next,
		store:  store,
		dir:    opts.CacheDir,
		logger: opts.Logger.WithGroup("attachments"),
		files:  make(map[string]string),
	}
	if s.dir == "" {
		dir, err := os.MkdirTemp("", "bulkmail-attachments-")
		if err != nil {
			return nil, errors.Wrap(err, "failed to create attachment cache")
		}
		s.dir, s.ownsDir = dir, true
	} else if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create attachment cache %s", s.dir)
	}
	return s, nil
}

// Send resolves the remote attachments of email and delegates. A ref that cannot
// be fetched fails the attempt without contacting the server.
func (s *Sender) Send(ctx context.Context, server mail.Server, email mail.Email) mail.Result {
	start := time.Now()
	if len(email.Attachments) > 0 {
		paths := make([]string, len(email.Attachments))
		for i, a := range email.Attachments {
			if !storage.IsRemote(a) {
				paths[i] = a
				continue
			}
			p, err := s.Fetch(ctx, a)
			if err != nil {
				return mail.Failure(err, time.Since(start))
			}
			paths[i] = p
		}
		email.Attachments = paths
	}
	return s.next.Send(ctx, server, email)
}

func (s *Sender) Verify(ctx context.Context, server mail.Server) mail.Result {
	return s.next.Verify(ctx, server)
}

// Fetch returns the local path of ref, downloading it on first use.
func (s *Sender) Fetch(ctx context.Context, ref string) (string, error) {
	s.mu.RLock()
	p, ok := s.files[ref]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	v, err, _ := s.group.Do(ref, func() (any, error) {
		s.mu.RLock()
		p, ok := s.files[ref]
		s.mu.RUnlock()
		if ok {
			return p, nil
		}

		p, err := s.download(ctx, ref)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.files[ref] = p
		s.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Sender) download(ctx context.Context, raw string) (string, error) {
	ref, err := storage.ParseRef(raw)
	if err != nil {
		return "", err
	}
	if s.store == nil {
		return "", errors.Wrap(ErrNoStorage, raw)
	}

	rc, info, err := s.store.Get(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch attachment %s", raw)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			s.logger.With("error", err).Warn("failed to close object", "ref", raw)
		}
	}()

	// one directory per ref keeps the original base name
	sum := sha256.Sum256([]byte(ref.String()))
	dir := filepath.Join(s.dir, hex.EncodeToString(sum[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", dir)
	}
	dst := filepath.Join(dir, ref.Name())

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create download file")
	}
	n, err := io.Copy(tmp, rc)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", errors.Wrapf(err, "failed to store attachment %s", raw)
	}

	s.logger.Debug("attachment fetched", "ref", raw, "path", dst, "bytes", n, "etag", info.ETag)
	return dst, nil
}

// Close closes the wrapped sender and removes a temporary cache.
func (s *Sender) Close() error {
	err := s.next.Close()
	if s.ownsDir {
		if rmErr := os.RemoveAll(s.dir); rmErr != nil && err == nil {
			err = errors.Wrap(rmErr, "failed to remove attachment cache")
		}
	}
	return err
}
