package encoders

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/campaign"
)

// Line renders run events as one human readable log line each, the way an
// operator console prints them. Strings and byte slices pass through.
type Line struct {
	// Location for timestamps. Defaults to time.Local.
	Location *time.Location
}

func (l Line) Encode(i any) ([]byte, error) {
	switch v := i.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case campaign.Outcome:
		return []byte(l.outcome(v)), nil
	case *campaign.Outcome:
		return []byte(l.outcome(*v)), nil
	case campaign.Tally:
		return []byte(tally(v)), nil
	case *campaign.Tally:
		return []byte(tally(*v)), nil
	default:
		return nil, errors.Errorf("unknown type %T to encode with %T", i, l)
	}
}

func (Line) ContentType() string {
	return "text/plain; charset=utf-8"
}

func (l Line) outcome(o campaign.Outcome) string {
	loc := l.Location
	if loc == nil {
		loc = time.Local
	}
	stamp := o.At.In(loc).Format(time.TimeOnly)
	if o.OK {
		return fmt.Sprintf("[%s] OK: to=%s via=%s", stamp, o.Recipient, o.Host)
	}
	return fmt.Sprintf("[%s] FAIL: to=%s via=%s error=%q", stamp, o.Recipient, o.Host, o.Error)
}

func tally(t campaign.Tally) string {
	return fmt.Sprintf("all done: run=%s total=%d sent=%d failed=%d dropped=%d canceled=%d",
		t.RunID, t.Total, t.Sent, t.Failed, t.Dropped, t.Canceled)
}
