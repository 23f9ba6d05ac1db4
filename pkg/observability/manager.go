package observability

import (
	"context"
	"fmt"
	"log/slog"
)

// Manager owns the lifecycle of the Tracer and Metrics, handed explicitly
// to every component that needs them rather than reached for through a
// package-level singleton (§9).
type Manager struct {
	config  *Config
	tracer  *Tracer
	metrics *Metrics
	logger  *slog.Logger
}

// NewManager builds a Manager from configuration, initializing tracing
// and metrics only where enabled.
func NewManager(ctx context.Context, cfg *Config, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("observability: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{config: cfg, logger: logger}

	tracer, err := NewTracer(ctx, &cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to initialize tracing: %w", err)
	}
	m.tracer = tracer

	if cfg.Metrics.Enabled {
		metrics, err := NewMetrics(&cfg.Metrics)
		if err != nil {
			_ = tracer.Shutdown(ctx)
			return nil, fmt.Errorf("observability: failed to initialize metrics: %w", err)
		}
		m.metrics = metrics
		logger.Info("observability: metrics initialized", "namespace", cfg.Metrics.Namespace)
	}

	return m, nil
}

// Tracer returns the tracer (never nil; a no-op tracer when tracing is
// disabled).
func (m *Manager) Tracer() *Tracer {
	if m == nil {
		return nil
	}
	return m.tracer
}

// Metrics returns the metrics instance, or nil when metrics are disabled.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// Shutdown flushes and stops tracing.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil || m.tracer == nil {
		return nil
	}
	if err := m.tracer.Shutdown(ctx); err != nil {
		return fmt.Errorf("observability: tracer shutdown: %w", err)
	}
	return nil
}
