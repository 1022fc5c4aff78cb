package campaign

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pure-golang/bulkmail/campaign/schedule"
	"github.com/pure-golang/bulkmail/logger"
	"github.com/pure-golang/bulkmail/mail"
)

var tracer = otel.Tracer("github.com/pure-golang/bulkmail/campaign")

// Skip records a recipient slot that produced no task.
type Skip struct {
	Index  int
	Email  string
	Reason string
}

// Plan is the result of one assembly.
type Plan struct {
	RunID    string
	Mode     Mode
	Dispatch DispatchModel
	Seed     uint64
	Anchor   time.Time   // the "now" the schedule was generated from
	Schedule []time.Time // one entry per slot, skipped slots included
	Tasks    []Task
	Skipped  []Skip
}

// Assembler builds plans. The zero value is ready to use.
type Assembler struct {
	// Now is the clock the schedule is anchored to. Defaults to time.Now.
	Now func() time.Time
	// NewRunID returns the identifier stamped on every task. Defaults to a UUID.
	NewRunID func() string
	// Logger defaults to the logger carried by the context.
	Logger *slog.Logger
}

// Assemble validates pools and settings, generates the schedule and resolves one
// task per schedule slot. Any configuration problem is returned as a *ConfigError
// and no tasks are built.
func (a *Assembler) Assemble(ctx context.Context, pools Pools, settings Settings) (*Plan, error) {
	ctx, span := tracer.Start(ctx, "Assembler.Assemble")
	defer span.End()

	plan, err := a.assemble(ctx, pools, settings)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("campaign.run_id", plan.RunID),
		attribute.String("campaign.mode", string(plan.Mode)),
		attribute.Int("campaign.tasks", len(plan.Tasks)),
		attribute.Int("campaign.skipped", len(plan.Skipped)),
	)
	span.SetStatus(codes.Ok, "")
	return plan, nil
}

func (a *Assembler) assemble(ctx context.Context, pools Pools, settings Settings) (*Plan, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := checkPools(pools); err != nil {
		return nil, err
	}

	mode, _ := ParseMode(string(settings.Mode))
	r := len(pools.Recipients)
	n := r
	if mode == ModeSpike {
		n = settings.SpikeTotal()
		if n > r {
			return nil, configError("spike_days", ErrSpikeExceedsRecipients, "total %d, recipients %d", n, r)
		}
	}

	seed := settings.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	gen := schedule.New(seed)
	anchor := time.Now()
	if a.Now != nil {
		anchor = a.Now()
	}
	gen.Now = func() time.Time { return anchor }

	var slots []time.Time
	switch mode {
	case ModeCustomDelay:
		lo, hi := settings.DelayRange()
		slots = gen.CustomDelay(n, lo, hi)
	case ModeBatch:
		lo, hi := settings.BatchDelayRange()
		slots = gen.Batch(n, settings.BatchMin, settings.BatchMax, lo, hi)
	case ModeSpike:
		start, _ := settings.Start(time.Local)
		slots = gen.Spike(settings.SpikeDays, start)
	default:
		slots = gen.NoDelay(n)
	}
	if len(slots) != n {
		return nil, configError("sending_mode", ErrInvalidSettings, "schedule has %d entries for %d tasks", len(slots), n)
	}

	plan := &Plan{
		RunID:    a.runID(),
		Mode:     mode,
		Dispatch: settings.DispatchModelOrDefault(),
		Seed:     seed,
		Anchor:   anchor,
		Schedule: slots,
		Tasks:    make([]Task, 0, n),
	}

	log := a.logger(ctx).With("run_id", plan.RunID)
	pick := func(size int) int { return gen.Rand.IntN(size) }

	for i, at := range slots {
		rcpt := pools.Recipients[i]
		if reason := checkRecipient(rcpt); reason != "" {
			log.Warn("skipping recipient", "index", i, "email", rcpt.Email, "reason", reason)
			plan.Skipped = append(plan.Skipped, Skip{Index: i, Email: rcpt.Email, Reason: reason})
			continue
		}

		task := Task{
			RunID:      plan.RunID,
			Index:      i,
			Recipient:  rcpt,
			Credential: pools.Credentials[pick(len(pools.Credentials))],
			SendAt:     at,
		}
		subject := pools.Subjects[pick(len(pools.Subjects))]
		body := pools.Messages[pick(len(pools.Messages))]
		if len(pools.Attachments) > 0 {
			task.Attachments = []string{pools.Attachments[pick(len(pools.Attachments))]}
		}
		if len(pools.Proxies) > 0 {
			task.Proxy = pools.Proxies[pick(len(pools.Proxies))]
		}

		data := placeholderData(rcpt)
		task.Subject = ReplacePlaceholders(subject, data)
		task.Body = ReplacePlaceholders(body, data)
		plan.Tasks = append(plan.Tasks, task)
	}

	log.Info("campaign assembled",
		"mode", string(mode),
		"recipients", r,
		"tasks", len(plan.Tasks),
		"skipped", len(plan.Skipped),
		"seed", seed,
	)
	return plan, nil
}

func checkPools(p Pools) error {
	required := []struct {
		field string
		size  int
	}{
		{"leads", len(p.Recipients)},
		{"smtps", len(p.Credentials)},
		{"subjects", len(p.Subjects)},
		{"messages", len(p.Messages)},
	}
	for _, r := range required {
		if r.size == 0 {
			return configError(r.field, ErrEmptyPool, "no entries loaded")
		}
	}

	for _, raw := range p.Proxies {
		if _, err := mail.ParseProxy(raw); err != nil {
			return &ConfigError{Field: "proxies", Err: err}
		}
	}
	return nil
}

func checkRecipient(r Recipient) string {
	switch {
	case r.Email == "":
		return "missing email"
	case !ValidEmail(r.Email):
		return "malformed email"
	}
	return ""
}

// placeholderData exposes the lead's fields plus its address as {email}.
func placeholderData(r Recipient) map[string]string {
	if _, ok := r.Fields["email"]; ok {
		return r.Fields
	}
	data := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		data[k] = v
	}
	data["email"] = r.Email
	return data
}

func (a *Assembler) runID() string {
	if a.NewRunID != nil {
		return a.NewRunID()
	}
	return uuid.NewString()
}

func (a *Assembler) logger(ctx context.Context) *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return logger.FromContext(ctx)
}
