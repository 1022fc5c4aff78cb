// Package runner ties a stored campaign to its pools, the assembler and a
// dispatcher. It is what the bulkmail command executes.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/dispatch"
	"github.com/pure-golang/bulkmail/logger"
	"github.com/pure-golang/bulkmail/mail"
	"github.com/pure-golang/bulkmail/source"
	"github.com/pure-golang/bulkmail/store"
	"github.com/pure-golang/bulkmail/tracing"
)

var tracer = otel.Tracer("github.com/pure-golang/bulkmail/runner")

type Runner struct {
	Campaigns store.Store
	Loader    source.Loader
	Sender    mail.Sender
	// Sink receives the outcomes of Run. Nil discards them.
	Sink   dispatch.Sink
	Logger *slog.Logger
	// Now is the clock for assembly and dispatch. Defaults to time.Now.
	Now func() time.Time
	// VerifyLimit bounds concurrent SMTP checks in Verify.
	VerifyLimit int
}

// Plan loads the campaign and its pools and assembles the tasks without sending.
func (r *Runner) Plan(ctx context.Context, name string) (*campaign.Plan, error) {
	ctx, span := tracer.Start(ctx, "Runner.Plan")
	defer span.End()
	span.SetAttributes(attribute.String("campaign.name", name))

	c, err := r.Campaigns.Load(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load campaign %s", name)
	}
	pools, err := r.Loader.Load(ctx, source.SelectionOf(c.Settings))
	if err != nil {
		return nil, err
	}

	a := &campaign.Assembler{Now: r.now, Logger: r.logger()}
	return a.Assemble(ctx, pools, c.Settings)
}

// Run plans the campaign and dispatches it with the model named in its
// settings. It returns once every task has an outcome or was canceled.
func (r *Runner) Run(ctx context.Context, name string) (*campaign.Plan, campaign.Tally, error) {
	plan, err := r.Plan(ctx, name)
	if err != nil {
		return nil, campaign.Tally{}, err
	}
	return plan, r.Execute(tracing.WithCampaign(ctx, name, ""), plan), nil
}

// Execute dispatches an assembled plan.
//
// The timer model measures delays from the plan's anchor, so the time spent
// between assembly and scheduling does not push immediate tasks into the past.
func (r *Runner) Execute(ctx context.Context, plan *campaign.Plan) campaign.Tally {
	ctx = logger.WithRun(ctx, plan.RunID)
	ctx = tracing.WithCampaign(ctx, "", plan.RunID)
	opts := &dispatch.Options{Logger: r.logger().WithGroup("dispatch"), Now: r.now, RunID: plan.RunID}
	sink := r.Sink
	if sink == nil {
		sink = dispatch.Discard
	}

	switch plan.Dispatch {
	case campaign.DispatchTimer:
		pending := dispatch.NewTimer(r.Sender, sink, opts).ScheduleFrom(ctx, plan.Tasks, plan.Anchor)
		return pending.Wait()
	default:
		return dispatch.NewSequential(r.Sender, sink, opts).Run(ctx, plan.Tasks)
	}
}

// Verify checks that every server of the campaign's SMTP list accepts its login.
func (r *Runner) Verify(ctx context.Context, name string) ([]campaign.Verification, error) {
	ctx, span := tracer.Start(ctx, "Runner.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("campaign.name", name))

	c, err := r.Campaigns.Load(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load campaign %s", name)
	}
	creds, err := r.Loader.Credentials(ctx, c.Settings.SMTPs)
	if err != nil {
		return nil, err
	}

	res := campaign.VerifyPool(ctx, r.Sender, creds, r.VerifyLimit)
	ok := 0
	for _, v := range res {
		if v.Result.OK {
			ok++
		}
	}
	r.logger().InfoContext(ctx, "smtp pool verified", "campaign", name, "servers", len(res), "ok", ok)
	return res, nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
