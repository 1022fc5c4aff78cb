package campaign

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyPool is reported when a required pool has no entries.
	ErrEmptyPool = errors.New("pool is empty")
	// ErrInvalidSettings is reported for mode parameters that cannot produce a schedule.
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrSpikeExceedsRecipients is reported when the spike day counts ask for more
	// sends than there are recipients.
	ErrSpikeExceedsRecipients = errors.New("spike total exceeds recipient count")
)

// ConfigError is a configuration failure detected before any task is built.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("campaign config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configError(field string, err error, format string, args ...any) error {
	return &ConfigError{Field: field, Err: errors.Wrapf(err, format, args...)}
}
