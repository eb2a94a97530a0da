package spool_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/heimdall-obs/hmdl-go/spool"
)

func testSpan(t *testing.T, name string) sdktrace.ReadOnlySpan {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	start := time.Unix(1700000000, 0).UTC()
	return tracetest.SpanStub{
		Name: name,
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: traceID,
			SpanID:  spanID,
		}),
		SpanKind:  trace.SpanKindInternal,
		StartTime: start,
		EndTime:   start.Add(120 * time.Millisecond),
		Attributes: []attribute.KeyValue{
			attribute.String("mcp.tool.name", name),
		},
		Status: sdktrace.Status{Code: codes.Ok},
	}.Snapshot()
}

func spoolFiles(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	return files
}

func TestExporterWritesBatchFile(t *testing.T) {
	dir := t.TempDir()
	exporter, err := spool.New(dir)
	require.NoError(t, err)

	err = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{
		testSpan(t, "search-tool"),
		testSpan(t, "calculator"),
	})
	require.NoError(t, err)

	files := spoolFiles(t, dir)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], ".hmdl.lz4"), "unexpected file name %q", files[0])
	assert.False(t, strings.HasSuffix(files[0], ".tmp"))
}

func TestExporterEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	exporter, err := spool.New(dir)
	require.NoError(t, err)

	require.NoError(t, exporter.ExportSpans(context.Background(), nil))
	assert.Empty(t, spoolFiles(t, dir))
}

func TestExporterClosed(t *testing.T) {
	dir := t.TempDir()
	exporter, err := spool.New(dir)
	require.NoError(t, err)

	require.NoError(t, exporter.Shutdown(context.Background()))

	err = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{testSpan(t, "op")})
	assert.ErrorIs(t, err, spool.ErrSpoolClosed)
}

func TestExporterCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "spool")

	_, err := spool.New(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	exporter, err := spool.New(dir)
	require.NoError(t, err)

	require.NoError(t, exporter.ExportSpans(context.Background(),
		[]sdktrace.ReadOnlySpan{testSpan(t, "search-tool")}))

	var batches [][]spool.Record
	err = spool.Replay(context.Background(), dir,
		func(ctx context.Context, spans []spool.Record) error {
			batches = append(batches, spans)
			return nil
		})
	require.NoError(t, err)

	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)

	record := batches[0][0]
	assert.Equal(t, "search-tool", record.Name)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", record.TraceID)
	assert.Equal(t, "00f067aa0ba902b7", record.SpanID)
	assert.Equal(t, trace.SpanKindInternal.String(), record.Kind)
	assert.Equal(t, codes.Ok.String(), record.StatusCode)
	assert.Equal(t, "search-tool", record.Attributes["mcp.tool.name"])
	assert.Equal(t, time.Unix(1700000000, 0).UnixNano(), record.StartUnixNano)

	assert.Empty(t, spoolFiles(t, dir), "replayed files should be deleted")
}
