package hmdl

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// MetaCarrier adapts the _meta map of an MCP request to the
// OpenTelemetry text map carrier interface, so that trace context can
// travel inside MCP request metadata. Non-string values already in the
// map are ignored by Get and left untouched by Set.
type MetaCarrier map[string]any

var _ propagation.TextMapCarrier = MetaCarrier(nil)

// Get returns the string value associated with key, or "".
func (c MetaCarrier) Get(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// Set stores a string value under key.
func (c MetaCarrier) Set(key, value string) {
	c[key] = value
}

// Keys lists the keys in the carrier.
func (c MetaCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for key := range c {
		keys = append(keys, key)
	}
	return keys
}

// InjectMeta writes the trace context from ctx into meta using the
// global text map propagator.
func InjectMeta(ctx context.Context, meta map[string]any) {
	otel.GetTextMapPropagator().Inject(ctx, MetaCarrier(meta))
}

// ExtractMeta returns a context carrying any trace context found in
// meta. If meta carries none, ctx is returned unchanged.
func ExtractMeta(ctx context.Context, meta map[string]any) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, MetaCarrier(meta))
}
