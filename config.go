package hmdl

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvEndpoint          = "HEIMDALL_ENDPOINT"
	EnvEnabled           = "HEIMDALL_ENABLED"
	EnvProjectID         = "HEIMDALL_PROJECT_ID"
	EnvServiceName       = "HEIMDALL_SERVICE_NAME"
	EnvEnvironment       = "HEIMDALL_ENVIRONMENT"
	EnvProtocol          = "HEIMDALL_PROTOCOL"
	EnvSampleRate        = "HEIMDALL_SAMPLE_RATE"
	EnvMaxSpansPerSecond = "HEIMDALL_MAX_SPANS_PER_SECOND"
	EnvFlushTimeout      = "HEIMDALL_FLUSH_TIMEOUT"
)

const (
	DefaultEndpoint     = "http://localhost:4318"
	DefaultProjectID    = "default"
	DefaultServiceName  = "hmdl-go"
	DefaultEnvironment  = "development"
	DefaultFlushTimeout = 10 * time.Second
)

// Config holds the settings for a Client.
type Config struct {
	// Endpoint is the base URL of the Heimdall collector.
	Endpoint string

	// Enabled turns span recording on or off. A disabled Client is a
	// no-op: decorators still run the wrapped handlers but record
	// nothing.
	Enabled bool

	// ProjectID identifies the Heimdall project spans are billed to.
	ProjectID string

	// ServiceName is reported as the OpenTelemetry service.name.
	ServiceName string

	// Environment is reported as deployment.environment.
	Environment string

	// UseGRPC selects the OTLP/gRPC exporter instead of OTLP/HTTP.
	UseGRPC bool

	// SampleRate is the head sampling ratio in [0, 1]. It is ignored
	// when MaxSpansPerSecond is set.
	SampleRate float64

	// MaxSpansPerSecond caps root span throughput with a rate-limiting
	// sampler. Zero means no cap.
	MaxSpansPerSecond int

	// FlushTimeout bounds Flush and Shutdown.
	FlushTimeout time.Duration
}

// DefaultConfig returns a Config suitable for local development against
// a collector listening on localhost.
func DefaultConfig() Config {
	return Config{
		Endpoint:     DefaultEndpoint,
		Enabled:      true,
		ProjectID:    DefaultProjectID,
		ServiceName:  DefaultServiceName,
		Environment:  DefaultEnvironment,
		SampleRate:   1,
		FlushTimeout: DefaultFlushTimeout,
	}
}

// ConfigFromEnv builds a Config from the HEIMDALL_* environment
// variables, starting from DefaultConfig. Unset variables keep their
// defaults; malformed values are ignored rather than reported, so a bad
// HEIMDALL_SAMPLE_RATE never breaks the host application.
func ConfigFromEnv() Config {
	c := DefaultConfig()

	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv(EnvEnabled); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Enabled = enabled
		}
	}
	if v := os.Getenv(EnvProjectID); v != "" {
		c.ProjectID = v
	}
	if v := os.Getenv(EnvServiceName); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv(EnvEnvironment); v != "" {
		c.Environment = v
	}
	if v := os.Getenv(EnvProtocol); v != "" {
		c.UseGRPC = v == "grpc"
	}
	if v := os.Getenv(EnvSampleRate); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate >= 0 && rate <= 1 {
			c.SampleRate = rate
		}
	}
	if v := os.Getenv(EnvMaxSpansPerSecond); v != "" {
		if maxSpans, err := strconv.Atoi(v); err == nil && maxSpans >= 0 {
			c.MaxSpansPerSecond = maxSpans
		}
	}
	if v := os.Getenv(EnvFlushTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.FlushTimeout = d
		}
	}

	return c
}

// Validate reports configuration that cannot be used to build a Client.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("hmdl: invalid endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("hmdl: endpoint %q must use http or https", c.Endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("hmdl: endpoint %q has no host", c.Endpoint)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("hmdl: sample rate %v out of range [0, 1]", c.SampleRate)
	}
	if c.MaxSpansPerSecond < 0 {
		return fmt.Errorf("hmdl: max spans per second must not be negative")
	}
	if c.FlushTimeout <= 0 {
		return fmt.Errorf("hmdl: flush timeout must be positive")
	}
	return nil
}
