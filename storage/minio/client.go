package minio

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/storage"
)

// Client owns the minio.Client the attachment store reads through.
type Client struct {
	client *minio.Client
	cfg    Config
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

type ClientOptions struct {
	Logger *slog.Logger
}

// NewClient creates a client and checks that the endpoint answers. Credentials
// scoped to a few buckets usually may not list buckets, so an access-denied
// answer still counts as reachable.
func NewClient(ctx context.Context, cfg Config, options *ClientOptions) (*Client, error) {
	if options == nil {
		options = &ClientOptions{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	logger := options.Logger.WithGroup("s3")

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	tr, err := transport(cfg)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Region:    cfg.Region,
		Secure:    cfg.Secure,
		Transport: tr,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 client")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := client.ListBuckets(pingCtx); err != nil {
		if !errors.Is(toStorageError(err, "", ""), storage.ErrAccessDenied) {
			return nil, errors.Wrap(err, "failed to connect to S3 storage")
		}
		logger.Debug("bucket listing denied, endpoint reachable", "endpoint", endpoint)
	}

	logger.Info("S3 client initialized", "endpoint", endpoint, "region", cfg.Region, "secure", cfg.Secure)

	return &Client{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// transport keeps TLS but skips certificate checks when asked, for MinIO
// deployments with self-signed certificates.
func transport(cfg Config) (http.RoundTripper, error) {
	tr, err := minio.DefaultTransport(cfg.Secure)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build S3 transport")
	}
	if cfg.Secure && cfg.InsecureSkipVerify {
		tr.TLSClientConfig.InsecureSkipVerify = true
	}
	return tr, nil
}

// Minio returns the underlying minio.Client.
func (c *Client) Minio() *minio.Client {
	return c.client
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("S3 client closed")
	return nil
}

func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
