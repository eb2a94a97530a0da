package mcptrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	hmdl "github.com/heimdall-obs/hmdl-go"
)

// Prompt wraps an hmdl.Handler, recording every invocation as an MCP
// prompt-render span named "prompts/get <name>".
func Prompt(next hmdl.Handler, opts ...Option) hmdl.Handler {
	o := newOptions("prompt", opts)

	return hmdl.HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		attrs := []attribute.KeyValue{
			attribute.String("mcp.prompt.name", o.Name),
		}
		return run(ctx, o, "prompts/get "+o.Name, attrs, args, next)
	})
}
