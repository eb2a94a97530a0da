// Package hmdl is the Heimdall tracing client for Go.
//
// Heimdall records MCP tool, resource, and prompt invocations as
// OpenTelemetry spans and ships them to a Heimdall collector over OTLP.
// A Client owns the span pipeline (resource, sampler, batcher, exporter)
// and is configured from HEIMDALL_* environment variables or an explicit
// Config. The decorators that actually record invocations live in the
// mcptrace subpackage; the spool subpackage provides a disk-backed
// exporter for running without a reachable collector.
package hmdl

import (
	"context"
	"errors"
)

// A Handler executes a single MCP operation: a tool call, a resource
// read, or a prompt render.
//
// Invoke receives the operation arguments as decoded JSON and returns
// the operation result, also as a JSON-compatible value. If Invoke
// returns an error, the operation is considered failed and any span
// wrapping the call records the error.
//
// Multiple goroutines may call Invoke simultaneously.
type Handler interface {
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// The HandlerFunc is an adapter to allow the use of ordinary functions
// as a Handler. HandlerFunc(f) is a Handler that calls f.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Invoke calls f(ctx, args)
func (f HandlerFunc) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// ErrClientClosed is returned by Flush and Shutdown after the Client
// has been shut down.
var ErrClientClosed = errors.New("hmdl: client closed")
