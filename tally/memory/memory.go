// Package memory is an in-process tally.Store.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/tally"
)

var _ tally.Store = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	runs map[string]*tally.Progress
}

func NewStore() *Store {
	return &Store{runs: make(map[string]*tally.Progress)}
}

func (s *Store) run(id string) *tally.Progress {
	p, ok := s.runs[id]
	if !ok {
		p = &tally.Progress{Tally: campaign.Tally{RunID: id}}
		s.runs[id] = p
	}
	return p
}

func (s *Store) Record(_ context.Context, o campaign.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.run(o.RunID)
	p.Add(o)
	if !o.OK {
		p.Failures = append(p.Failures, tally.Failure(o))
	}
	return nil
}

// Finish takes the final counters from t; outcomes recorded so far are superseded.
func (s *Store) Finish(_ context.Context, t campaign.Tally) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.run(t.RunID)
	p.Tally = t
	p.Finished = true
	return nil
}

func (s *Store) Get(_ context.Context, runID string) (tally.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.runs[runID]
	if !ok {
		return tally.Progress{}, tally.ErrNotFound
	}
	out := *p
	out.Failures = slices.Clone(p.Failures)
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
