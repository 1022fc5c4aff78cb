package storage

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrAccessDenied   = errors.New("access denied")
	ErrBucketNotFound = errors.New("bucket not found")
)

// ErrorCode classifies a backend failure.
type ErrorCode string

const (
	CodeNotFound       ErrorCode = "NotFound"
	CodeAccessDenied   ErrorCode = "AccessDenied"
	CodeBucketNotFound ErrorCode = "BucketNotFound"
	CodeInternalError  ErrorCode = "InternalError"
)

// Error wraps a backend failure with the object it concerns.
type Error struct {
	Code   ErrorCode
	Err    error
	Bucket string
	Key    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s (bucket=%s, key=%s): %v", e.Code, e.Bucket, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel of the code.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case CodeNotFound:
		return target == ErrNotFound
	case CodeAccessDenied:
		return target == ErrAccessDenied
	case CodeBucketNotFound:
		return target == ErrBucketNotFound
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrBucketNotFound)
}
