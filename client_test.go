package hmdl_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	octrace "go.opencensus.io/trace"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	hmdl "github.com/heimdall-obs/hmdl-go"
)

func newTestClient(t *testing.T, cfg hmdl.Config, exporter sdktrace.SpanExporter) *hmdl.Client {
	t.Helper()

	client, err := hmdl.New(context.Background(),
		hmdl.WithConfig(cfg),
		hmdl.WithSpanExporter(exporter),
		hmdl.WithoutGlobal(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Shutdown(context.Background())
	})
	return client
}

func TestNewDisabled(t *testing.T) {
	cfg := hmdl.DefaultConfig()
	cfg.Enabled = false

	client, err := hmdl.New(context.Background(), hmdl.WithConfig(cfg), hmdl.WithoutGlobal())
	require.NoError(t, err)

	_, span := client.Tracer("test").Start(context.Background(), "op")
	assert.False(t, span.IsRecording(), "disabled client should hand out non-recording spans")
	span.End()

	assert.NoError(t, client.Flush(context.Background()))
	assert.NoError(t, client.Shutdown(context.Background()))
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := hmdl.DefaultConfig()
	cfg.Endpoint = "ftp://collector:4318"

	_, err := hmdl.New(context.Background(), hmdl.WithConfig(cfg), hmdl.WithoutGlobal())
	assert.Error(t, err)
}

func TestClientFlushExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := hmdl.DefaultConfig()
	cfg.ProjectID = "test-go-sdk"
	client := newTestClient(t, cfg, exporter)

	_, span := client.Tracer("test").Start(context.Background(), "tools/call search-tool")
	span.End()

	require.NoError(t, client.Flush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "tools/call search-tool", spans[0].Name)

	var foundProject bool
	for _, kv := range spans[0].Resource.Attributes() {
		if string(kv.Key) == "heimdall.project.id" {
			foundProject = true
			assert.Equal(t, "test-go-sdk", kv.Value.AsString())
		}
	}
	assert.True(t, foundProject, "resource should carry heimdall.project.id")
}

func TestClientShutdown(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	client := newTestClient(t, hmdl.DefaultConfig(), exporter)

	_, span := client.Tracer("test").Start(context.Background(), "op")
	span.End()

	require.NoError(t, client.Shutdown(context.Background()))
	assert.Len(t, exporter.GetSpans(), 1, "shutdown should flush pending spans")

	assert.ErrorIs(t, client.Shutdown(context.Background()), hmdl.ErrClientClosed)
	assert.ErrorIs(t, client.Flush(context.Background()), hmdl.ErrClientClosed)
}

func TestWithOpenCensusBridge(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()

	client, err := hmdl.New(context.Background(),
		hmdl.WithConfig(hmdl.DefaultConfig()),
		hmdl.WithSpanExporter(exporter),
		hmdl.WithoutGlobal(),
		hmdl.WithOpenCensusBridge(),
	)
	require.NoError(t, err)
	defer client.Shutdown(context.Background())

	// Spans from legacy OpenCensus instrumentation land in the same
	// pipeline.
	_, ocSpan := octrace.StartSpan(context.Background(), "legacy-op")
	ocSpan.End()

	require.NoError(t, client.Flush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "legacy-op", spans[0].Name)
}

func TestNewInstallsGlobalProvider(t *testing.T) {
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})

	exporter := tracetest.NewInMemoryExporter()
	client, err := hmdl.New(context.Background(),
		hmdl.WithConfig(hmdl.DefaultConfig()),
		hmdl.WithSpanExporter(exporter),
	)
	require.NoError(t, err)
	defer client.Shutdown(context.Background())

	assert.Same(t, client.TracerProvider(), otel.GetTracerProvider())

	_, span := otel.Tracer("global").Start(context.Background(), "op")
	span.End()
	require.NoError(t, client.Flush(context.Background()))
	assert.Len(t, exporter.GetSpans(), 1)
}
