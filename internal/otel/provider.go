package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// SiteKey is the resource attribute naming the observation site.
const SiteKey = attribute.Key("locator.site")

const defaultBatchTimeout = 5 * time.Second

// Config holds OTel log export settings.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Site is attached to every exported record so fixes from several
	// sites can share one collector.
	Site string

	BatchTimeout time.Duration
	LogWriter    io.Writer // receives a JSON rendering of every record
	Endpoint     string    // OTLP/HTTP collector, skipped when empty
	Insecure     bool
}

// Provider owns the log pipeline behind the otelslog bridge.
type Provider struct {
	logs *sdklog.LoggerProvider
}

// New builds a provider exporting to cfg.LogWriter and, when set, to the
// OTLP endpoint. At least one of the two is required.
func New(cfg Config) (*Provider, error) {
	ctx := context.Background()

	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Site != "" {
		attrs = append(attrs, SiteKey.String(cfg.Site))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	exporters, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.BatchTimeout
	if timeout <= 0 {
		timeout = defaultBatchTimeout
	}
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(timeout))))
	}
	return &Provider{logs: sdklog.NewLoggerProvider(opts...)}, nil
}

func newExporters(ctx context.Context, cfg Config) ([]sdklog.Exporter, error) {
	var exporters []sdklog.Exporter
	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter))
		if err != nil {
			return nil, fmt.Errorf("otel file exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}
	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otel OTLP exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}
	if len(exporters) == 0 {
		return nil, errors.New("otel: no log writer or endpoint configured")
	}
	return exporters, nil
}

// LoggerProvider returns the provider for the otelslog bridge.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Shutdown exports the records still batched and stops the pipeline.
// Records logged afterwards are dropped.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.logs == nil {
		return nil
	}
	return errors.Join(p.logs.ForceFlush(ctx), p.logs.Shutdown(ctx))
}
