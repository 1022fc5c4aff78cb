// Package journal keeps a durable record of every send outcome and run tally.
package journal

import (
	"context"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/dispatch"
)

// ErrDuplicate is returned when an outcome for the same run and task index was
// already appended.
var ErrDuplicate = errors.New("outcome already journaled")

type Journal interface {
	Append(ctx context.Context, o campaign.Outcome) error
	Finish(ctx context.Context, t campaign.Tally) error
	// Outcomes returns the outcomes of a run ordered by task index.
	Outcomes(ctx context.Context, runID string) ([]campaign.Outcome, error)
	io.Closer
}

var _ dispatch.Sink = (*Sink)(nil)

// Sink appends the outcome stream of a dispatcher. Journal errors are logged
// and never stop the run.
type Sink struct {
	j      Journal
	logger *slog.Logger
}

func NewSink(j Journal, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{j: j, logger: logger.WithGroup("journal")}
}

func (s *Sink) Outcome(ctx context.Context, o campaign.Outcome) {
	if err := s.j.Append(ctx, o); err != nil {
		s.logger.Error("failed to journal outcome", "run_id", o.RunID, "index", o.Index, "error", err)
	}
}

func (s *Sink) Finished(ctx context.Context, t campaign.Tally) {
	if err := s.j.Finish(ctx, t); err != nil {
		s.logger.Error("failed to journal tally", "run_id", t.RunID, "error", err)
	}
}
