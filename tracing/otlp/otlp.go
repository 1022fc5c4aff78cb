// Package otlp exports spans over OTLP/HTTP to any compatible collector
// (Jaeger, Tempo, the OpenTelemetry collector).
package otlp

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"

	"github.com/pure-golang/bulkmail/tracing"
)

var _ tracing.Provider = (*Provider)(nil)

type Config struct {
	// EndPoint is a full URL such as http://localhost:4318/v1/traces. Empty disables tracing.
	EndPoint    string  `envconfig:"TRACING_ENDPOINT"`
	ServiceName string  `envconfig:"SERVICE_NAME" default:"bulkmail"`
	AppVersion  string  `envconfig:"APP_VERSION" default:"dev"`
	SampleRatio float64 `envconfig:"TRACING_SAMPLE_RATIO" default:"1"`
}

// Provider extends tracesdk.TracerProvider with an OTLP batch exporter.
type Provider struct {
	*tracesdk.TracerProvider
}

func (p *Provider) Close() error {
	ctx := context.Background()
	if err := p.ForceFlush(ctx); err != nil {
		if shutdownErr := p.TracerProvider.Shutdown(ctx); shutdownErr != nil {
			return errors.Wrap(err, "otlp force flush failed (also shutdown failed)")
		}
		return errors.Wrap(err, "otlp force flush failed")
	}
	return errors.Wrap(p.TracerProvider.Shutdown(ctx), "shutdown otlp")
}

func NewProviderBuilder(conf Config) tracing.ProviderBuilder {
	return func() (tracing.Provider, error) {
		if conf.EndPoint == "" {
			return nil, tracing.ErrDisabled
		}
		if conf.ServiceName == "" {
			return nil, errors.New("service name is empty")
		}

		exp, err := otlptrace.New(
			context.Background(),
			otlptracehttp.NewClient(
				otlptracehttp.WithEndpointURL(conf.EndPoint),
			),
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create otlp exporter")
		}

		tp := tracesdk.NewTracerProvider(
			tracesdk.WithBatcher(exp),
			tracesdk.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String(conf.ServiceName),
				semconv.ServiceVersionKey.String(conf.AppVersion),
			)),
			tracesdk.WithSampler(sampler(conf.SampleRatio)),
		)

		return &Provider{TracerProvider: tp}, nil
	}
}

func sampler(ratio float64) tracesdk.Sampler {
	switch {
	case ratio >= 1:
		return tracesdk.AlwaysSample()
	case ratio <= 0:
		return tracesdk.NeverSample()
	default:
		return tracesdk.ParentBased(tracesdk.TraceIDRatioBased(ratio))
	}
}
