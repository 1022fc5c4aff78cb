// Package tally keeps live per-run counters that other processes can poll while
// a campaign is sending.
package tally

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/campaign"
)

var ErrNotFound = errors.New("run not found")

// Store accumulates outcomes per run.
type Store interface {
	// Record counts one outcome. Failed outcomes are also remembered by recipient.
	Record(ctx context.Context, o campaign.Outcome) error
	// Finish stores the final tally of a run.
	Finish(ctx context.Context, t campaign.Tally) error
	// Get returns the counters of a run so far. Unknown runs yield ErrNotFound.
	Get(ctx context.Context, runID string) (Progress, error)
	io.Closer
}

// Progress is the state of a run as seen by a Store.
type Progress struct {
	campaign.Tally
	Finished bool
	// Failures holds "recipient: error" entries in arrival order.
	Failures []string
}

// Failure formats a failed outcome the way stores keep it.
func Failure(o campaign.Outcome) string {
	return o.Recipient + ": " + o.Error
}
