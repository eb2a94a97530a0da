// Package spool provides a disk-backed span exporter and replayer.
//
// The Exporter writes each span batch to a directory as an
// lz4-compressed JSON file, so spans survive a collector outage or an
// air-gapped run. Replay later drains the directory oldest-first and
// hands the decoded batches to a caller-supplied handler.
package spool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ErrSpoolClosed is the error used for export operations on a closed Exporter.
var ErrSpoolClosed = errors.New("spool: exporter closed")

// fileSuffix marks spool batch files.
const fileSuffix = ".hmdl.lz4"

// Record is the on-disk form of a finished span.
type Record struct {
	TraceID           string            `json:"trace_id"`
	SpanID            string            `json:"span_id"`
	ParentID          string            `json:"parent_id,omitempty"`
	Name              string            `json:"name"`
	Kind              string            `json:"kind"`
	StartUnixNano     int64             `json:"start_unix_nano"`
	EndUnixNano       int64             `json:"end_unix_nano"`
	StatusCode        string            `json:"status_code"`
	StatusDescription string            `json:"status_description,omitempty"`
	Attributes        map[string]string `json:"attributes,omitempty"`
	Events            []Event           `json:"events,omitempty"`
}

// Event is a point-in-time annotation on a Record.
type Event struct {
	Name         string            `json:"name"`
	TimeUnixNano int64             `json:"time_unix_nano"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// batch is the payload of a single spool file.
type batch struct {
	WrittenUnixNano int64    `json:"written_unix_nano"`
	Spans           []Record `json:"spans"`
}

// Exporter writes span batches to a spool directory.
//
// Multiple goroutines may invoke ExportSpans simultaneously.
type Exporter struct {
	dir    string
	level  lz4.CompressionLevel
	logger *log.Logger

	mux    sync.Mutex
	closed bool
}

var _ sdktrace.SpanExporter = (*Exporter)(nil)

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithCompressionLevel sets the lz4 compression level.
func WithCompressionLevel(level lz4.CompressionLevel) ExporterOption {
	return func(e *Exporter) {
		e.level = level
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *log.Logger) ExporterOption {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// New creates an Exporter spooling into dir, creating it if needed.
func New(dir string, opts ...ExporterOption) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool: creating directory: %w", err)
	}

	e := &Exporter{
		dir:    dir,
		level:  lz4.Level3,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ExportSpans writes spans to the spool directory as one batch file.
// The file appears atomically: it is written under a temporary name
// and renamed into place, so Replay never observes a partial batch.
func (e *Exporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mux.Lock()
	defer e.mux.Unlock()

	if e.closed {
		return ErrSpoolClosed
	}
	if len(spans) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := batch{
		WrittenUnixNano: time.Now().UnixNano(),
		Spans:           make([]Record, 0, len(spans)),
	}
	for _, s := range spans {
		b.Spans = append(b.Spans, fromReadOnly(s))
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("spool: encoding batch: %w", err)
	}

	name := fmt.Sprintf("%d-%s%s", b.WrittenUnixNano, uuid.NewString(), fileSuffix)
	final := filepath.Join(e.dir, name)
	tmp := final + ".tmp"

	if err := e.writeCompressed(tmp, payload); err != nil {
		e.discard(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		e.discard(tmp)
		return fmt.Errorf("spool: publishing batch: %w", err)
	}
	return nil
}

func (e *Exporter) discard(tmp string) {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		e.logger.Printf("[ERROR] spool: could not remove temp file %s: %v", tmp, err)
	}
}

func (e *Exporter) writeCompressed(path string, payload []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("spool: creating batch file: %w", err)
	}

	w := lz4.NewWriter(f)
	if err := w.Apply(lz4.CompressionLevelOption(e.level)); err != nil {
		f.Close()
		return fmt.Errorf("spool: configuring compression: %w", err)
	}

	if _, err := w.Write(payload); err != nil {
		w.Close()
		f.Close()
		return fmt.Errorf("spool: writing batch: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("spool: flushing compression: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("spool: closing batch file: %w", err)
	}
	return nil
}

// Shutdown marks the Exporter closed. Spooled files stay on disk for a
// later Replay.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mux.Lock()
	defer e.mux.Unlock()

	e.closed = true
	return ctx.Err()
}

func fromReadOnly(s sdktrace.ReadOnlySpan) Record {
	sc := s.SpanContext()

	r := Record{
		TraceID:           sc.TraceID().String(),
		SpanID:            sc.SpanID().String(),
		Name:              s.Name(),
		Kind:              s.SpanKind().String(),
		StartUnixNano:     s.StartTime().UnixNano(),
		EndUnixNano:       s.EndTime().UnixNano(),
		StatusCode:        s.Status().Code.String(),
		StatusDescription: s.Status().Description,
		Attributes:        attributesToMap(s.Attributes()),
	}
	if parent := s.Parent(); parent.HasSpanID() {
		r.ParentID = parent.SpanID().String()
	}
	for _, ev := range s.Events() {
		r.Events = append(r.Events, Event{
			Name:         ev.Name,
			TimeUnixNano: ev.Time.UnixNano(),
			Attributes:   attributesToMap(ev.Attributes),
		})
	}
	return r
}

func attributesToMap(attrs []attribute.KeyValue) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}
