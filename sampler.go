package hmdl

import (
	"fmt"
	"time"

	"github.com/asecurityteam/rolling"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// RateLimitSampler returns a sampler that records at most maxPerSecond
// new traces per second, measured over a rolling one-second window.
// Spans whose parent is already sampled bypass the cap so that traces
// are never recorded partially.
//
// A maxPerSecond of zero or less disables the cap.
func RateLimitSampler(maxPerSecond int) sdktrace.Sampler {
	if maxPerSecond <= 0 {
		return sdktrace.AlwaysSample()
	}
	return &rateLimitSampler{
		max:    float64(maxPerSecond),
		window: rolling.NewTimePolicy(rolling.NewWindow(1000), time.Millisecond),
	}
}

type rateLimitSampler struct {
	max float64

	// window holds one bucket per millisecond over the last second.
	window *rolling.TimePolicy
}

func (s *rateLimitSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	psc := trace.SpanContextFromContext(p.ParentContext)

	if psc.IsValid() && psc.IsSampled() {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.RecordAndSample,
			Tracestate: psc.TraceState(),
		}
	}

	// The count-then-append pair is not atomic across goroutines; the
	// cap is a throughput bound, not an exact quota.
	if s.window.Reduce(rolling.Count) >= s.max {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.Drop,
			Tracestate: psc.TraceState(),
		}
	}
	s.window.Append(1)

	return sdktrace.SamplingResult{
		Decision:   sdktrace.RecordAndSample,
		Tracestate: psc.TraceState(),
	}
}

func (s *rateLimitSampler) Description() string {
	return fmt.Sprintf("RateLimitSampler{%d/s}", int(s.max))
}
