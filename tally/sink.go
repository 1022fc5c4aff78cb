package tally

import (
	"context"
	"log/slog"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/dispatch"
)

var _ dispatch.Sink = (*Sink)(nil)

// Sink feeds a Store from a dispatcher. Store errors are logged and dropped.
type Sink struct {
	store  Store
	logger *slog.Logger
}

func NewSink(store Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, logger: logger.WithGroup("tally")}
}

func (s *Sink) Outcome(ctx context.Context, o campaign.Outcome) {
	if err := s.store.Record(ctx, o); err != nil {
		s.logger.Error("failed to record outcome", "run_id", o.RunID, "index", o.Index, "error", err)
	}
}

func (s *Sink) Finished(ctx context.Context, t campaign.Tally) {
	if err := s.store.Finish(ctx, t); err != nil {
		s.logger.Error("failed to finish tally", "run_id", t.RunID, "error", err)
	}
}
