// Package observability wires structured logging, OpenTelemetry tracing,
// and Prometheus metrics into ragforge's ingestion and retrieval paths,
// grounded on a pkg/observability package but trimmed to the concerns
// this module actually has: no HTTP metrics endpoint, since an HTTP
// front end is an explicit Non-goal (the Registry is exposed for an
// embedder to scrape however it likes).
package observability

import (
	"fmt"
	"time"
)

// Config configures the observability system.
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

func (c *Config) SetDefaults() {
	c.Tracing.SetDefaults()
	c.Metrics.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

// TracingConfig configures OpenTelemetry span export for ingestion jobs
// and retrieval calls.
type TracingConfig struct {
	Enabled      bool          `yaml:"enabled,omitempty"`
	Exporter     string        `yaml:"exporter,omitempty"` // "stdout" or "otlp"
	Endpoint     string        `yaml:"endpoint,omitempty"`
	SamplingRate float64       `yaml:"sampling_rate,omitempty"`
	ServiceName  string        `yaml:"service_name,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

func (c *TracingConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "ragforge"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
	if c.Exporter == "" {
		c.Exporter = "stdout"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %f", c.SamplingRate)
	}
	switch c.Exporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("invalid exporter %q (valid: stdout, otlp)", c.Exporter)
	}
	if c.Exporter == "otlp" && c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when exporter is otlp")
	}
	return nil
}

// MetricsConfig configures the Prometheus metrics registry.
type MetricsConfig struct {
	Enabled     bool              `yaml:"enabled,omitempty"`
	Namespace   string            `yaml:"namespace,omitempty"`
	ConstLabels map[string]string `yaml:"const_labels,omitempty"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "ragforge"
	}
}

func (c *MetricsConfig) Validate() error {
	return nil
}
