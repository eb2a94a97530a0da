// Package mcptrace provides decorators which record MCP operations as
// OpenTelemetry spans.
//
// How it works
//
// Each decorator wraps an hmdl.Handler and returns another: Tool for
// tool calls, Resource for resource reads, Prompt for prompt renders.
// On every invocation a span is started, the wrapped handler runs, and
// the span ends with the outcome attached: an Ok status on success, or
// an exception event and an Error status on failure. The span ends on
// every exit path, including panics. Observe does the same for
// arbitrary work that is not an MCP operation.
//
// The decorators use the global tracer provider, which hmdl.New
// installs by default; pass WithTracerProvider to override.
//
// Examples
//
// Tracing a tool handler:
//
//	handler := hmdl.HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
//		// your tool implementation
//		return result, nil
//	})
//	handler = mcptrace.Tool(handler, mcptrace.WithName("search-tool"))
//	// use handler as you would without tracing
package mcptrace

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	hmdl "github.com/heimdall-obs/hmdl-go"
)

const tracerName = "github.com/heimdall-obs/hmdl-go/mcptrace"

// metaKey is where MCP requests carry metadata, including trace context.
const metaKey = "_meta"

// Options holds the settings shared by the decorators.
type Options struct {
	// Name of the tool, resource, or prompt. Used in the span name.
	Name string

	// TracerProvider overrides the global provider.
	TracerProvider trace.TracerProvider

	// Attributes are set on every span the decorator starts.
	Attributes []attribute.KeyValue

	// PayloadLimit, when positive, records JSON-encoded arguments and
	// results on the span, truncated to this many bytes.
	PayloadLimit int

	// Propagate extracts parent trace context from the _meta entry of
	// the arguments and injects the new span's context back into it.
	Propagate bool
}

// An Option configures a decorator.
type Option func(*Options)

// WithName sets the operation name recorded on spans.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithTracerProvider uses tp instead of the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

// WithAttributes adds attrs to every span the decorator starts.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(o *Options) {
		o.Attributes = append(o.Attributes, attrs...)
	}
}

// WithPayloadCapture records operation arguments and results on spans,
// truncated to maxBytes of JSON.
func WithPayloadCapture(maxBytes int) Option {
	return func(o *Options) {
		o.PayloadLimit = maxBytes
	}
}

// WithPropagation links spans to trace context carried in the _meta
// entry of the operation arguments.
func WithPropagation() Option {
	return func(o *Options) {
		o.Propagate = true
	}
}

func newOptions(defaultName string, opts []Option) *Options {
	o := &Options{Name: defaultName}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Options) tracer() trace.Tracer {
	tp := o.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

// run starts a span, invokes next, and closes the span out with the
// outcome. The span ends exactly once on every exit path.
func run(ctx context.Context, o *Options, spanName string, attrs []attribute.KeyValue, args map[string]any, next hmdl.Handler) (result any, err error) {
	if o.Propagate {
		if meta, ok := args[metaKey].(map[string]any); ok {
			ctx = hmdl.ExtractMeta(ctx, meta)
		}
	}

	ctx, span := o.tracer().Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	if len(o.Attributes) > 0 {
		span.SetAttributes(o.Attributes...)
	}
	if o.PayloadLimit > 0 && len(args) > 0 {
		span.SetAttributes(attribute.String("mcp.request.arguments", encodePayload(args, o.PayloadLimit)))
	}
	if o.Propagate && args != nil {
		meta, ok := args[metaKey].(map[string]any)
		if !ok {
			meta = make(map[string]any)
			args[metaKey] = meta
		}
		hmdl.InjectMeta(ctx, meta)
	}

	defer func() {
		if r := recover(); r != nil {
			span.AddEvent("exception", trace.WithAttributes(
				attribute.String("exception.type", "panic"),
				attribute.String("exception.message", fmt.Sprint(r)),
			))
			span.SetStatus(codes.Error, fmt.Sprint(r))
			span.End()
			panic(r)
		}

		if err != nil {
			span.AddEvent("exception", trace.WithAttributes(
				attribute.String("exception.type", fmt.Sprintf("%T", err)),
				attribute.String("exception.message", err.Error()),
			))
			span.SetStatus(codes.Error, err.Error())
		} else {
			if o.PayloadLimit > 0 && result != nil {
				span.SetAttributes(attribute.String("mcp.response.content", encodePayload(result, o.PayloadLimit)))
			}
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	result, err = next.Invoke(ctx, args)
	return result, err
}

// encodePayload renders v as JSON truncated to limit bytes, with a
// trailing ellipsis when truncated.
func encodePayload(v any, limit int) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", v))
	}
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
