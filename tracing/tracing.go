package tracing

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrDisabled is returned by a builder when no exporter is configured.
// Init treats it as a request for the noop provider, not as a failure.
var ErrDisabled = errors.New("tracing disabled")

type Provider interface {
	trace.TracerProvider
	io.Closer
}

// ProviderBuilder wrap all realization details of constructor (ex. config struct)
type ProviderBuilder func() (Provider, error)

// Init installs the built provider as the global one. On failure the global
// provider is left untouched and a NoopProvider is returned with the error.
func Init(creator ProviderBuilder) (Provider, error) {
	provider, err := creator()
	if errors.Is(err, ErrDisabled) {
		return &NoopProvider{}, nil
	}
	if err != nil {
		return &NoopProvider{}, errors.Wrap(err, "failed to load tracing provider")
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider, nil
}

type NoopProvider struct{ noop.TracerProvider }

func (NoopProvider) Close() error { return nil }

// Baggage keys that travel with the trace context into published run events.
const (
	BaggageCampaign = "bulkmail.campaign"
	BaggageRunID    = "bulkmail.run_id"
)

// WithCampaign adds the campaign name and run id to the context baggage. Empty
// values are left out.
func WithCampaign(ctx context.Context, campaign, runID string) context.Context {
	b := baggage.FromContext(ctx)
	for _, kv := range [][2]string{{BaggageCampaign, campaign}, {BaggageRunID, runID}} {
		if kv[1] == "" {
			continue
		}
		m, err := baggage.NewMemberRaw(kv[0], kv[1])
		if err != nil {
			continue
		}
		if next, err := b.SetMember(m); err == nil {
			b = next
		}
	}
	return baggage.ContextWithBaggage(ctx, b)
}
