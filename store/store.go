// Package store persists named campaign settings.
package store

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/campaign"
)

var (
	ErrNotFound    = errors.New("campaign not found")
	ErrInvalidName = errors.New("invalid campaign name")
)

// Campaign is a named settings document.
type Campaign struct {
	Name      string
	Settings  campaign.Settings
	UpdatedAt time.Time
}

type Store interface {
	// Save creates or replaces the campaign.
	Save(ctx context.Context, c Campaign) error
	// Load returns ErrNotFound for an unknown name.
	Load(ctx context.Context, name string) (Campaign, error)
	// List returns campaign names in lexical order.
	List(ctx context.Context) ([]string, error)
	// Delete returns ErrNotFound for an unknown name.
	Delete(ctx context.Context, name string) error
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.-]{0,127}$`)

// ValidateName accepts names that are safe as a single path segment.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) || name == "." || name == ".." {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return nil
}
