package campaign

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/pure-golang/bulkmail/mail"
)

// Verification is the reachability check of one SMTP pool entry.
type Verification struct {
	Credential SMTPCredential
	Result     mail.Result
}

// VerifyPool checks every credential with sender.Verify, at most limit at a time.
// Results are in input order. A limit below 1 means no bound.
func VerifyPool(ctx context.Context, sender mail.Sender, creds []SMTPCredential, limit int) []Verification {
	out := make([]Verification, len(creds))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, c := range creds {
		g.Go(func() error {
			out[i] = Verification{Credential: c, Result: sender.Verify(ctx, c.Server(""))}
			return nil
		})
	}
	_ = g.Wait()

	return out
}
