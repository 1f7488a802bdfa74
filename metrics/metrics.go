package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NethermindEth/eternalgov/storage"
)

const namespace = "eternalgov"

// Metrics holds the delegate's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ingestRuns      *prometheus.CounterVec
	sourceFailures  *prometheus.CounterVec
	recordsIngested *prometheus.CounterVec
	recommendations *prometheus.CounterVec
	confidence      prometheus.Histogram
	votes           *prometheus.CounterVec
	state           *prometheus.GaugeVec
	memoryRecords   *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs by result.",
		}, []string{"result"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Failed source fetches by source.",
		}, []string{"source"}),
		recordsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Records written to memory by kind.",
		}, []string{"kind"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Vote recommendations by DAO and risk level.",
		}, []string{"dao", "risk"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recommendation_confidence",
			Help:      "Confidence of produced recommendations.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Vote attempts by DAO and result.",
		}, []string{"dao", "result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orchestrator_state",
			Help:      "1 for the current orchestrator state, 0 otherwise.",
		}, []string{"state"}),
		memoryRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_records",
			Help:      "Records held per memory layer.",
		}, []string{"layer"}),
	}
	m.registry.MustRegister(
		m.ingestRuns, m.sourceFailures, m.recordsIngested,
		m.recommendations, m.confidence, m.votes,
		m.state, m.memoryRecords,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveIngest(result string, failedSources []string, written map[string]int) {
	if m == nil {
		return
	}
	m.ingestRuns.WithLabelValues(result).Inc()
	for _, src := range failedSources {
		m.sourceFailures.WithLabelValues(src).Inc()
	}
	for kind, n := range written {
		m.recordsIngested.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) ObserveRecommendation(dao, risk string, confidence float64) {
	if m == nil {
		return
	}
	m.recommendations.WithLabelValues(dao, risk).Inc()
	m.confidence.Observe(confidence)
}

func (m *Metrics) ObserveVote(dao, result string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(dao, result).Inc()
}

// SetState marks current as the active state among all known states
func (m *Metrics) SetState(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) SetMemoryRecords(layer string, n int) {
	if m == nil {
		return
	}
	m.memoryRecords.WithLabelValues(layer).Set(float64(n))
}

// StorageStats is implemented by storage.DBStorage
type StorageStats interface {
	Metrics() storage.DBMetrics
}

// WatchStorage exports the operation counters of a BadgerDB namespace
func (m *Metrics) WatchStorage(db string, stats StorageStats) error {
	if m == nil || stats == nil {
		return nil
	}
	ops := map[string]func(storage.DBMetrics) int64{
		"put":    func(s storage.DBMetrics) int64 { return s.PutCount },
		"get":    func(s storage.DBMetrics) int64 { return s.GetCount },
		"prefix": func(s storage.DBMetrics) int64 { return s.GetByPrefixCount },
		"error":  func(s storage.DBMetrics) int64 { return s.Errors },
	}
	for op, read := range ops {
		c := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "storage_operations_total",
			Help:        "BadgerDB operations by database and operation.",
			ConstLabels: prometheus.Labels{"db": db, "op": op},
		}, func() float64 { return float64(read(stats.Metrics())) })
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
