package mcptrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	hmdl "github.com/heimdall-obs/hmdl-go"
)

// Tool wraps an hmdl.Handler, recording every invocation as an MCP
// tool-call span named "tools/call <name>".
func Tool(next hmdl.Handler, opts ...Option) hmdl.Handler {
	o := newOptions("tool", opts)

	return hmdl.HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		attrs := []attribute.KeyValue{
			attribute.String("mcp.tool.name", o.Name),
		}
		return run(ctx, o, "tools/call "+o.Name, attrs, args, next)
	})
}
