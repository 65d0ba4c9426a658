package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const exporterDialTimeout = 10 * time.Second

// ComponentKey tells the API server and the indexer apart in shared traces
const ComponentKey = attribute.Key("labrinth.component")

// OTelConfig selects the OTLP collector and sampling for one binary
type OTelConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	// Component is "api" or "indexer"
	Component string
	Insecure  bool
	// SampleRatio is the fraction of root traces recorded
	SampleRatio float64
}

// Telemetry owns the providers InitOTel installed globally
type Telemetry struct {
	tracer *sdktrace.TracerProvider
	meter  *metric.MeterProvider
	log    *logrus.Logger
}

// InitOTel exports traces and metrics over OTLP/gRPC and installs the
// providers globally. When disabled it returns a Telemetry whose Shutdown
// does nothing, and every span started in the process is a no-op.
func InitOTel(ctx context.Context, cfg OTelConfig, log *logrus.Logger) (*Telemetry, error) {
	t := &Telemetry{log: log}
	if !cfg.Enabled {
		log.Info("OpenTelemetry is disabled")
		return t, nil
	}

	res, err := otelResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	var dialOpts []grpc.DialOption
	if cfg.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	spans, err := otlptracegrpc.New(dialCtx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(dialOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	readings, err := otlpmetricgrpc.New(dialCtx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithDialOption(dialOpts...),
	)
	if err != nil {
		if serr := spans.Shutdown(ctx); serr != nil {
			log.WithError(serr).Warn("Failed to close trace exporter")
		}
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	t.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	t.meter = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(readings, metric.WithInterval(10*time.Second))),
	)

	otel.SetTracerProvider(t.tracer)
	otel.SetMeterProvider(t.meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.WithFields(logrus.Fields{
		"endpoint":     cfg.Endpoint,
		"component":    cfg.Component,
		"sample_ratio": cfg.SampleRatio,
	}).Info("OpenTelemetry initialized")
	return t, nil
}

func otelResource(ctx context.Context, cfg OTelConfig) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			ComponentKey.String(cfg.Component),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
	)
}

// Shutdown flushes pending spans and metric readings
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tracer == nil {
		return nil
	}

	err := errors.Join(
		wrapShutdown("tracer provider", t.tracer.Shutdown(ctx)),
		wrapShutdown("meter provider", t.meter.Shutdown(ctx)),
	)
	if err != nil {
		t.log.WithError(err).Error("OpenTelemetry shutdown incomplete")
		return err
	}
	t.log.Info("OpenTelemetry flushed")
	return nil
}

func wrapShutdown(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s shutdown: %w", what, err)
}

// TracingMiddleware starts a server span per request named after the matched
// route template. Until InitOTel installs a provider the spans are no-ops.
func TracingMiddleware(service string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if route := mux.CurrentRoute(r); route != nil {
					if tmpl, err := route.GetPathTemplate(); err == nil {
						return r.Method + " " + tmpl
					}
				}
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}
