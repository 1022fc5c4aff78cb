// Command bulkmail plans, sends and verifies stored email campaigns.
//
//	bulkmail [flags] plan <campaign>
//	bulkmail [flags] run <campaign>
//	bulkmail [flags] verify <campaign>
//	bulkmail list
//	bulkmail import <campaign> <campaign_config.json>
//	bulkmail delete <campaign>
//	bulkmail progress <run-id>
//	bulkmail report <run-id>
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/campaign"
	"github.com/pure-golang/bulkmail/logger"
	"github.com/pure-golang/bulkmail/metrics"
	"github.com/pure-golang/bulkmail/runner"
	"github.com/pure-golang/bulkmail/store"
	"github.com/pure-golang/bulkmail/tracing"
	"github.com/pure-golang/bulkmail/tracing/otlp"
)

const usage = `usage: bulkmail [flags] <command> [args]

commands:
  plan <campaign>                     print the assembled tasks without sending
  run <campaign>                      assemble and send
  verify <campaign>                   log in to every server of the SMTP list
  list                                list stored campaigns
  import <campaign> <config.json>     store a campaign_config.json under a name
  delete <campaign>                   remove a stored campaign
  progress <run-id>                   show the live tally of a run
  report <run-id>                     print the journaled outcomes of a run

flags:
`

type options struct {
	dryRun  bool
	limit   int
	migrate bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "bulkmail:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var opts options
	fs := flag.NewFlagSet("bulkmail", flag.ContinueOnError)
	fs.BoolVar(&opts.dryRun, "dry-run", false, "record sends instead of contacting SMTP servers")
	fs.IntVar(&opts.limit, "limit", 50, "tasks printed by plan, 0 prints all")
	fs.BoolVar(&opts.migrate, "migrate", false, "create missing database tables before use")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command given")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logFile, err := logger.InitDefault(cfg.Logger)
	if err != nil {
		return err
	}
	log := slog.Default()
	ctx = logger.NewContext(ctx, log)
	defer closeWith(ctx, logFile, "log file")

	provider, err := tracing.Init(otlp.NewProviderBuilder(cfg.Tracing))
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}
	defer closeWith(ctx, provider, "tracing")

	metricsCloser, err := metrics.InitDefault(cfg.Metrics)
	if err != nil {
		return err
	}
	defer closeWith(ctx, metricsCloser, "metrics")

	a := &app{cfg: cfg, logger: log}
	defer closeWith(ctx, a, "backends")

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "plan":
		return a.plan(ctx, rest, opts, out)
	case "run":
		return a.run(ctx, rest, opts, out)
	case "verify":
		return a.verify(ctx, rest, opts, out)
	case "list":
		return a.list(ctx, opts, out)
	case "import":
		return a.importCampaign(ctx, rest, opts, out)
	case "delete":
		return a.delete(ctx, rest, opts)
	case "progress":
		return a.progress(ctx, rest, out)
	case "report":
		return a.report(ctx, rest, opts, out)
	}
	fs.Usage()
	return errors.Errorf("unknown command %q", cmd)
}

func (a *app) plan(ctx context.Context, args []string, opts options, out io.Writer) error {
	name, err := oneArg(args, "campaign")
	if err != nil {
		return err
	}
	campaigns, err := a.campaigns(ctx, opts.migrate)
	if err != nil {
		return err
	}
	plan, err := a.runner(campaigns, nil, nil).Plan(ctx, name)
	if err != nil {
		return err
	}
	return runner.WritePlan(out, plan, opts.limit)
}

func (a *app) run(ctx context.Context, args []string, opts options, out io.Writer) error {
	name, err := oneArg(args, "campaign")
	if err != nil {
		return err
	}
	campaigns, err := a.campaigns(ctx, opts.migrate)
	if err != nil {
		return err
	}
	tallies, err := a.tallyStore(ctx)
	if err != nil {
		return err
	}
	sink, err := a.sink(ctx, opts.migrate, tallies)
	if err != nil {
		return err
	}
	sender, err := a.sender(ctx, opts.dryRun)
	if err != nil {
		return err
	}

	_, t, err := a.runner(campaigns, sender, sink).Run(ctx, name)
	if err != nil {
		return err
	}
	if err := runner.WriteTally(out, t); err != nil {
		return err
	}
	if tallies != nil {
		// sinks received Finished before Run returned
		p, err := tallies.Get(context.WithoutCancel(ctx), t.RunID)
		if err != nil {
			return err
		}
		for _, f := range p.Failures {
			fmt.Fprintln(out, "  failed:", f)
		}
	}
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "run interrupted")
	}
	return nil
}

func (a *app) verify(ctx context.Context, args []string, opts options, out io.Writer) error {
	name, err := oneArg(args, "campaign")
	if err != nil {
		return err
	}
	campaigns, err := a.campaigns(ctx, opts.migrate)
	if err != nil {
		return err
	}
	sender, err := a.sender(ctx, opts.dryRun)
	if err != nil {
		return err
	}
	vs, err := a.runner(campaigns, sender, nil).Verify(ctx, name)
	if err != nil {
		return err
	}
	return runner.WriteVerifications(out, vs)
}

func (a *app) list(ctx context.Context, opts options, out io.Writer) error {
	campaigns, err := a.campaigns(ctx, opts.migrate)
	if err != nil {
		return err
	}
	names, err := campaigns.List(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
	return nil
}

func (a *app) importCampaign(ctx context.Context, args []string, opts options, out io.Writer) error {
	if len(args) != 2 {
		return errors.New("import needs <campaign> <config.json>")
	}
	b, err := os.ReadFile(args[1])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[1])
	}
	settings, err := campaign.ParseSettings(b)
	if err != nil {
		return err
	}
	campaigns, err := a.campaigns(ctx, opts.migrate)
	if err != nil {
		return err
	}
	if err := campaigns.Save(ctx, store.Campaign{Name: args[0], Settings: settings}); err != nil {
		return err
	}
	fmt.Fprintf(out, "campaign %s saved (%s)\n", args[0], settings.Mode)
	return nil
}

func (a *app) delete(ctx context.Context, args []string, opts options) error {
	name, err := oneArg(args, "campaign")
	if err != nil {
		return err
	}
	campaigns, err := a.campaigns(ctx, opts.migrate)
	if err != nil {
		return err
	}
	return campaigns.Delete(ctx, name)
}

func (a *app) progress(ctx context.Context, args []string, out io.Writer) error {
	runID, err := oneArg(args, "run-id")
	if err != nil {
		return err
	}
	if a.cfg.Tally != tallyRedis {
		return errors.New("progress needs BULKMAIL_TALLY=redis")
	}
	tallies, err := a.tallyStore(ctx)
	if err != nil {
		return err
	}
	p, err := tallies.Get(ctx, runID)
	if err != nil {
		return err
	}
	state := "running"
	if p.Finished {
		state = "finished"
	}
	fmt.Fprintf(out, "%s: %s\n", state, p.Tally.RunID)
	if err := runner.WriteTally(out, p.Tally); err != nil {
		return err
	}
	for _, f := range p.Failures {
		fmt.Fprintln(out, "  failed:", f)
	}
	return nil
}

func (a *app) report(ctx context.Context, args []string, opts options, out io.Writer) error {
	runID, err := oneArg(args, "run-id")
	if err != nil {
		return err
	}
	j, err := a.journal(ctx, opts.migrate)
	if err != nil {
		return err
	}
	outcomes, err := j.Outcomes(ctx, runID)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		line := fmt.Sprintf("%d\t%s\t%s\t%s\t%s", o.Index, o.At.Format("2006-01-02 15:04:05"), o.Recipient, o.Host, o.Status)
		if o.Error != "" {
			line += "\t" + o.Error
		}
		fmt.Fprintln(out, line)
	}
	t, err := j.Tally(ctx, runID)
	if err != nil {
		return err
	}
	return runner.WriteTally(out, t)
}

func oneArg(args []string, what string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", errors.Errorf("expected one <%s> argument", what)
	}
	return args[0], nil
}

func closeWith(ctx context.Context, c io.Closer, what string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.FromContextWithErr(ctx, err).Error("failed to close " + what)
	}
}
