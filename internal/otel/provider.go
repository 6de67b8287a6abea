// Package otel wires the OpenTelemetry log exporters.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ErrNoExporter is returned when telemetry is enabled without any sink.
var ErrNoExporter = errors.New("otel enabled but no log writer or endpoint configured")

// Config holds OTel configuration
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	BatchTimeout   time.Duration
	// LogWriter receives pretty-printed records, usually the session log file.
	LogWriter io.Writer
	// Endpoint is an OTLP/HTTP collector; empty disables it.
	Endpoint string
	Insecure bool
}

// Provider owns the log provider of a session. A disabled provider is valid and
// does nothing.
type Provider struct {
	logs *sdklog.LoggerProvider
	cfg  Config
}

// New builds the exporters named by cfg.
func New(cfg Config) (*Provider, error) {
	p := &Provider{cfg: cfg}
	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()
	exporters, err := logExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(exporters) == 0 {
		return nil, ErrNoExporter
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)),
		))
	}
	p.logs = sdklog.NewLoggerProvider(opts...)
	return p, nil
}

func logExporters(ctx context.Context, cfg Config) ([]sdklog.Exporter, error) {
	var out []sdklog.Exporter
	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating file log exporter: %w", err)
		}
		out = append(out, exp)
	}
	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP log exporter for %s: %w", cfg.Endpoint, err)
		}
		out = append(out, exp)
	}
	return out, nil
}

// LoggerProvider returns the provider for the otelslog bridge, nil when disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Meter returns a meter from the global meter provider, which is a no-op until an
// SDK meter provider is installed.
func (p *Provider) Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Flush exports pending records, e.g. after a program load.
func (p *Provider) Flush(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.ForceFlush(ctx); err != nil {
		return fmt.Errorf("flushing logs: %w", err)
	}
	return nil
}

// Shutdown flushes and stops all exporters. The provider is disabled afterwards.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	err := p.logs.Shutdown(ctx)
	p.logs = nil
	if err != nil {
		return fmt.Errorf("shutting down logs: %w", err)
	}
	return nil
}

// Enabled returns whether OTel is enabled
func (p *Provider) Enabled() bool {
	return p.cfg.Enabled
}
