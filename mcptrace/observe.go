package mcptrace

import (
	"context"

	hmdl "github.com/heimdall-obs/hmdl-go"
)

// Observe runs fn inside a span named name. It records the outcome the
// same way the MCP decorators do and returns whatever fn returns.
// Use it for work that is not a tool, resource, or prompt but should
// still show up in the trace.
func Observe(ctx context.Context, name string, fn func(context.Context) error, opts ...Option) error {
	o := newOptions(name, opts)

	_, err := run(ctx, o, name, nil, nil, hmdl.HandlerFunc(
		func(ctx context.Context, _ map[string]any) (any, error) {
			return nil, fn(ctx)
		},
	))
	return err
}
