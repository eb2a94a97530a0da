package mcptrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	hmdl "github.com/heimdall-obs/hmdl-go"
)

// Resource wraps an hmdl.Handler, recording every invocation as an MCP
// resource-read span named "resources/read <name>". When the arguments
// carry a "uri" string it is recorded as mcp.resource.uri.
func Resource(next hmdl.Handler, opts ...Option) hmdl.Handler {
	o := newOptions("resource", opts)

	return hmdl.HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		attrs := []attribute.KeyValue{
			attribute.String("mcp.resource.name", o.Name),
		}
		if uri, ok := args["uri"].(string); ok && uri != "" {
			attrs = append(attrs, attribute.String("mcp.resource.uri", uri))
		}
		return run(ctx, o, "resources/read "+o.Name, attrs, args, next)
	})
}
