// Package file keeps each campaign in <dir>/<name>/campaign_config.json.
package file

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/store"
)

const ConfigFile = "campaign_config.json"

var _ store.Store = (*Store)(nil)

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name, ConfigFile)
}

// Save writes the document through a temporary file so readers never see a partial one.
func (s *Store) Save(_ context.Context, c store.Campaign) error {
	if err := store.ValidateName(c.Name); err != nil {
		return err
	}

	b, err := json.MarshalIndent(c.Settings, "", "    ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode campaign %s", c.Name)
	}

	dir := filepath.Join(s.dir, c.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create campaign dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ConfigFile+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to write campaign config")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close campaign config")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path(c.Name)), "failed to replace campaign config")
}

func (s *Store) Load(_ context.Context, name string) (store.Campaign, error) {
	if err := store.ValidateName(name); err != nil {
		return store.Campaign{}, err
	}

	p := s.path(name)
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return store.Campaign{}, errors.Wrapf(store.ErrNotFound, "%s", name)
	}
	if err != nil {
		return store.Campaign{}, errors.Wrapf(err, "failed to read %s", p)
	}

	var settings campaign.Settings
	if err := json.Unmarshal(b, &settings); err != nil {
		return store.Campaign{}, errors.Wrapf(err, "failed to decode %s", p)
	}

	c := store.Campaign{Name: name, Settings: settings}
	if info, err := os.Stat(p); err == nil {
		c.UpdatedAt = info.ModTime()
	}
	return c, nil
}

func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", s.dir)
	}

	names := []string{}
	for _, e := range entries {
		if !e.IsDir() || store.ValidateName(e.Name()) != nil {
			continue
		}
		if info, err := os.Stat(s.path(e.Name())); err == nil && info.Mode().IsRegular() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Delete removes the settings document, and the campaign dir when nothing else is in it.
func (s *Store) Delete(_ context.Context, name string) error {
	if err := store.ValidateName(name); err != nil {
		return err
	}

	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(store.ErrNotFound, "%s", name)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to delete campaign %s", name)
	}
	_ = os.Remove(filepath.Join(s.dir, name))
	return nil
}
