package runner

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/campaign"
)

const timeLayout = "2006-01-02 15:04:05"

// WritePlan prints the plan summary and at most limit tasks. A limit below 1
// prints every task.
func WritePlan(w io.Writer, plan *campaign.Plan, limit int) error {
	fmt.Fprintf(w, "run %s: mode %q, dispatch %s, seed %d, %d tasks, %d skipped\n",
		plan.RunID, plan.Mode, plan.Dispatch, plan.Seed, len(plan.Tasks), len(plan.Skipped))
	if len(plan.Tasks) > 0 {
		first, last := plan.Tasks[0].SendAt, plan.Tasks[len(plan.Tasks)-1].SendAt
		fmt.Fprintf(w, "window %s .. %s (%s)\n", first.Format(timeLayout), last.Format(timeLayout), last.Sub(first).Round(time.Second))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSEND AT\tTO\tSMTP\tSUBJECT\tATTACHMENT\tPROXY")
	for i, t := range plan.Tasks {
		if limit > 0 && i == limit {
			fmt.Fprintf(tw, "...\t%d more\t\t\t\t\t\n", len(plan.Tasks)-limit)
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Index, t.SendAt.Format(timeLayout), t.Recipient.Email, t.Credential.Host,
			t.Subject, dash(strings.Join(t.Attachments, ",")), dash(t.Proxy))
	}
	for _, s := range plan.Skipped {
		fmt.Fprintf(tw, "%d\tskipped\t%s\t%s\t\t\t\n", s.Index, dash(s.Email), s.Reason)
	}
	return errors.Wrap(tw.Flush(), "failed to write plan")
}

// WriteVerifications prints one line per SMTP server.
func WriteVerifications(w io.Writer, vs []campaign.Verification) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tPORT\tUSER\tSTATUS\tTOOK\tERROR")
	for _, v := range vs {
		status := "ok"
		if !v.Result.OK {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Credential.Host, strconv.Itoa(v.Credential.Port), dash(v.Credential.Username),
			status, v.Result.Duration.Round(time.Millisecond), v.Result.Error())
	}
	return errors.Wrap(tw.Flush(), "failed to write verification report")
}

// WriteTally prints the end-of-run counters.
func WriteTally(w io.Writer, t campaign.Tally) error {
	_, err := fmt.Fprintf(w, "run %s: %d tasks, %d sent, %d failed, %d dropped, %d canceled\n",
		t.RunID, t.Total, t.Sent, t.Failed, t.Dropped, t.Canceled)
	return errors.Wrap(err, "failed to write tally")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
