package hmdl

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	ocbridge "go.opentelemetry.io/otel/bridge/opencensus"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Client owns the Heimdall span pipeline.
//
// A Client built from an enabled Config carries a real TracerProvider
// wired to an OTLP exporter; a disabled Config yields a no-op pipeline
// with the same API. Unless WithoutGlobal is given, New installs the
// provider and a W3C trace context propagator globally so that the
// mcptrace decorators pick them up.
//
// Multiple goroutines may invoke methods on a Client simultaneously.
type Client struct {
	cfg    Config
	logger *log.Logger

	provider trace.TracerProvider

	// sdk is nil when the client is disabled.
	sdk *sdktrace.TracerProvider

	mux    sync.Mutex
	closed bool
}

type clientOptions struct {
	cfg        *Config
	exporter   sdktrace.SpanExporter
	logger     *log.Logger
	skipGlobal bool
	ocBridge   bool
}

// Option configures a Client.
type Option func(*clientOptions)

// WithConfig uses cfg instead of reading the environment.
func WithConfig(cfg Config) Option {
	return func(o *clientOptions) {
		o.cfg = &cfg
	}
}

// WithSpanExporter replaces the OTLP exporter. The Endpoint and UseGRPC
// settings are ignored when this option is given.
func WithSpanExporter(exporter sdktrace.SpanExporter) Option {
	return func(o *clientOptions) {
		o.exporter = exporter
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithoutGlobal prevents New from installing the provider and
// propagator as the OpenTelemetry globals.
func WithoutGlobal() Option {
	return func(o *clientOptions) {
		o.skipGlobal = true
	}
}

// WithOpenCensusBridge routes spans from OpenCensus-instrumented code
// into the Client's provider, for hosts that still carry legacy
// instrumentation.
func WithOpenCensusBridge() Option {
	return func(o *clientOptions) {
		o.ocBridge = true
	}
}

// New creates a Client. Without WithConfig, the configuration is read
// from the HEIMDALL_* environment variables.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	var cfg Config
	if o.cfg != nil {
		cfg = *o.cfg
	} else {
		cfg = ConfigFromEnv()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = log.Default()
	}

	if !cfg.Enabled {
		return &Client{
			cfg:      cfg,
			logger:   logger,
			provider: noop.NewTracerProvider(),
		}, nil
	}

	res, err := buildResource(cfg)
	if err != nil {
		return nil, err
	}

	exporter := o.exporter
	if exporter == nil {
		exporter, err = newExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg)),
	)

	if !o.skipGlobal {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}
	if o.ocBridge {
		ocbridge.InstallTraceBridge(ocbridge.WithTracerProvider(tp))
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		provider: tp,
		sdk:      tp,
	}, nil
}

// Config returns the configuration the Client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// TracerProvider returns the provider backing the Client. It is a
// no-op provider when the Client is disabled.
func (c *Client) TracerProvider() trace.TracerProvider {
	return c.provider
}

// Tracer returns a named tracer from the Client's provider.
func (c *Client) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return c.provider.Tracer(name, opts...)
}

// Flush exports all spans that have ended but not yet been shipped.
// The call is bounded by the configured FlushTimeout in addition to
// any deadline already on ctx.
func (c *Client) Flush(ctx context.Context) error {
	c.mux.Lock()
	closed := c.closed
	c.mux.Unlock()

	if closed {
		return ErrClientClosed
	}
	if c.sdk == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FlushTimeout)
	defer cancel()

	return c.sdk.ForceFlush(ctx)
}

// Shutdown flushes remaining spans and releases the pipeline. After
// Shutdown returns, Flush and Shutdown return ErrClientClosed.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		return ErrClientClosed
	}
	c.closed = true
	c.mux.Unlock()

	if c.sdk == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FlushTimeout)
	defer cancel()

	if err := c.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("hmdl: shutdown: %w", err)
	}
	return nil
}

func buildResource(cfg Config) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
			attribute.String("heimdall.project.id", cfg.ProjectID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("hmdl: building resource: %w", err)
	}
	return res, nil
}

func newSampler(cfg Config) sdktrace.Sampler {
	if cfg.MaxSpansPerSecond > 0 {
		return RateLimitSampler(cfg.MaxSpansPerSecond)
	}
	if cfg.SampleRate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("hmdl: invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	insecure := u.Scheme != "https"

	if cfg.UseGRPC {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(u.Host)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("hmdl: creating OTLP gRPC exporter: %w", err)
		}
		return exporter, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(u.Host)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if u.Path != "" && u.Path != "/" {
		opts = append(opts, otlptracehttp.WithURLPath(u.Path))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("hmdl: creating OTLP HTTP exporter: %w", err)
	}
	return exporter, nil
}
