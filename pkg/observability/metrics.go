package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the Prometheus instruments ragforge's ingestion and
// retrieval paths record into, grounded on a per-subsystem registration
// pattern with instruments named for this domain's own subsystems.
type Metrics struct {
	config   *MetricsConfig
	Registry *prometheus.Registry

	// Ingestion
	JobsStarted    *prometheus.CounterVec
	JobsCompleted  *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	ChunksEmitted  *prometheus.CounterVec
	ChunksRejected *prometheus.CounterVec
	EmbeddingCalls *prometheus.CounterVec
	EmbeddingErrors *prometheus.CounterVec
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter

	// Retrieval
	RetrievalRequests *prometheus.CounterVec
	RetrievalDuration *prometheus.HistogramVec
	RetrievalResults  *prometheus.HistogramVec
	RetrievalDegraded prometheus.Counter

	// Rate limiting
	RateLimitThrottled prometheus.Counter
}

// NewMetrics constructs the registry and every instrument. Returns nil,
// nil when metrics are disabled. The instruments are plain exported
// fields with no nil-safe recording methods, so a nil *Metrics must not
// be dereferenced.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	m := &Metrics{config: cfg, Registry: prometheus.NewRegistry()}

	m.JobsStarted = m.counterVec("ingest", "jobs_started_total", "Ingestion jobs started", "format", "type")
	m.JobsCompleted = m.counterVec("ingest", "jobs_completed_total", "Ingestion jobs completed by terminal status", "status")
	m.JobDuration = m.histogramVec("ingest", "job_duration_seconds", "Ingestion job wall-clock duration", prometheus.ExponentialBuckets(0.1, 2, 12), "status")
	m.ChunksEmitted = m.counterVec("ingest", "chunks_emitted_total", "Chunks persisted after validation", "scale")
	m.ChunksRejected = m.counterVec("ingest", "chunks_rejected_total", "Chunks rejected by the quality validator", "scale", "reason")
	m.EmbeddingCalls = m.counterVec("embedding", "calls_total", "Embedding provider calls", "kind")
	m.EmbeddingErrors = m.counterVec("embedding", "errors_total", "Embedding provider errors", "kind", "class")

	m.CacheHits = m.counter("embedding", "cache_hits_total", "Embedding cache hits")
	m.CacheMisses = m.counter("embedding", "cache_misses_total", "Embedding cache misses")

	m.RetrievalRequests = m.counterVec("retrieval", "requests_total", "Retrieval requests by query type", "query_type")
	m.RetrievalDuration = m.histogramVec("retrieval", "duration_seconds", "Retrieval request duration", prometheus.ExponentialBuckets(0.005, 2, 12), "query_type")
	m.RetrievalResults = m.histogramVec("retrieval", "results_count", "Number of items returned per retrieval call", prometheus.LinearBuckets(0, 2, 10), "query_type")
	m.RetrievalDegraded = m.counter("retrieval", "degraded_total", "Retrieval calls that fell back to a degraded strategy")

	m.RateLimitThrottled = m.counter("ratelimit", "throttled_total", "Embedding calls delayed by the token-bucket limiter")

	for _, c := range []prometheus.Collector{
		m.JobsStarted, m.JobsCompleted, m.JobDuration, m.ChunksEmitted, m.ChunksRejected,
		m.EmbeddingCalls, m.EmbeddingErrors, m.CacheHits, m.CacheMisses,
		m.RetrievalRequests, m.RetrievalDuration, m.RetrievalResults, m.RetrievalDegraded,
		m.RateLimitThrottled,
	} {
		m.Registry.MustRegister(c)
	}

	return m, nil
}

func (m *Metrics) counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.config.Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.config.ConstLabels,
	}, labels)
}

func (m *Metrics) counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   m.config.Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.config.ConstLabels,
	})
}

func (m *Metrics) histogramVec(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.config.Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.config.ConstLabels,
	}, labels)
}
