// Package storage describes the object stores remote attachments are fetched from.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Scheme prefixes attachment refs that live in object storage.
const Scheme = "s3://"

// ObjectInfo represents metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
}

// PutOptions contains optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Storage is the subset of an object store the sender needs.
type Storage interface {
	// Get opens an object. The caller closes the reader.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error)
	// Put stores an object. A negative size streams until EOF.
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, opts *PutOptions) error
	io.Closer
}

// Ref addresses one object.
type Ref struct {
	Bucket string
	Key    string
}

func (r Ref) String() string {
	return Scheme + r.Bucket + "/" + r.Key
}

// Name is the base name of the key, used as the attachment file name.
func (r Ref) Name() string {
	return path.Base(r.Key)
}

// IsRemote reports whether s is an object storage ref rather than a local path.
func IsRemote(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), Scheme)
}

// ParseRef parses s3://bucket/key.
func ParseRef(s string) (Ref, error) {
	if !IsRemote(s) {
		return Ref{}, errors.Errorf("%q is not an %s ref", s, Scheme)
	}
	bucket, key, ok := strings.Cut(s[len(Scheme):], "/")
	key = strings.TrimLeft(key, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Ref{}, errors.Errorf("%q must look like %sbucket/key", s, Scheme)
	}
	return Ref{Bucket: bucket, Key: key}, nil
}
