// Package minio implements storage.Storage on top of minio-go.
package minio

import (
	"context"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bulkmail/storage"
)

var _ storage.Storage = (*Storage)(nil)

var tracer = otel.Tracer("github.com/pure-golang/bulkmail/storage/minio")

// ErrClientClosed is returned for calls made after Close.
var ErrClientClosed = errors.New("s3 client is closed")

type Storage struct {
	client *Client
	logger *slog.Logger
}

type StorageOptions struct {
	Logger *slog.Logger
}

func NewStorage(client *Client, opts *StorageOptions) *Storage {
	if opts == nil {
		opts = &StorageOptions{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Storage{
		client: client,
		logger: opts.Logger.WithGroup("storage").With("backend", "s3"),
	}
}

// Connect creates a client and wraps it.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	client, err := NewClient(ctx, cfg, &ClientOptions{Logger: logger})
	if err != nil {
		return nil, err
	}
	return NewStorage(client, &StorageOptions{Logger: logger}), nil
}

func (s *Storage) minio() (*minio.Client, error) {
	if s.client == nil || s.client.client == nil {
		return nil, errors.New("minio client is not initialized")
	}
	if s.client.IsClosed() {
		return nil, ErrClientClosed
	}
	return s.client.client, nil
}

func (s *Storage) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, opts *storage.PutOptions) error {
	ctx, span := tracer.Start(ctx, "S3.Put", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("key", key),
	))
	defer span.End()

	if opts == nil {
		opts = &storage.PutOptions{}
	}

	client, err := s.minio()
	if err != nil {
		return fail(span, err)
	}

	info, err := client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return fail(span, errors.Wrapf(toStorageError(err, bucket, key), "failed to put object %s/%s", bucket, key))
	}

	span.SetAttributes(attribute.Int64("size", info.Size), attribute.String("etag", info.ETag))
	span.SetStatus(codes.Ok, "")
	s.logger.Debug("Object stored", "bucket", bucket, "key", key, "size", info.Size)
	return nil
}

func (s *Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	ctx, span := tracer.Start(ctx, "S3.Get", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("key", key),
	))
	defer span.End()

	client, err := s.minio()
	if err != nil {
		return nil, nil, fail(span, err)
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fail(span, toStorageError(err, bucket, key))
	}

	// GetObject is lazy, Stat surfaces a missing key
	stat, err := obj.Stat()
	if err != nil {
		if closeErr := obj.Close(); closeErr != nil {
			s.logger.With("error", closeErr).Error("failed to close object after stat error")
		}
		return nil, nil, fail(span, toStorageError(err, bucket, key))
	}

	span.SetAttributes(attribute.Int64("size", stat.Size), attribute.String("etag", stat.ETag))
	span.SetStatus(codes.Ok, "")

	return obj, &storage.ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		LastModified: stat.LastModified,
		ETag:         stat.ETag,
		ContentType:  stat.ContentType,
	}, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
