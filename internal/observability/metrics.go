package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "station_qc"

// Metrics holds the Prometheus counters, histograms, and gauges for the QC pipeline.
type Metrics struct {
	PacketsConsumed prometheus.Counter
	TicketsProduced prometheus.Counter
	DecodeErrors    prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// QC metrics.
	Verdicts         *prometheus.CounterVec // labels: variable, rule, status={pass,fail,inconclusive}
	Tickets          *prometheus.CounterVec // labels: risk={low,medium,high,critical}
	LateObservations prometheus.Counter

	// Diagnosis metrics.
	DiagnosisFallbacks       *prometheus.CounterVec // labels: reason={error,timeout,invalid}
	DiagnosisCache           *prometheus.CounterVec // labels: result={hit,miss}
	DiagnosisBackendDuration prometheus.Histogram
	DiagnosisRemoteEnabled   prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PacketsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_consumed_total",
			Help:      "Total observation packets read from the source.",
		}),
		TicketsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_produced_total",
			Help:      "Total maintenance tickets written to the sink.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total messages that were not a JSON object.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of packets per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch QC cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "QC verdicts by variable, rule, and status.",
		}, []string{"variable", "rule", "status"}),
		Tickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_total",
			Help:      "Tickets by risk level.",
		}, []string{"risk"}),
		LateObservations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_late_observations_total",
			Help:      "Observations older than the newest sample in their series.",
		}),
		DiagnosisFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnosis_fallbacks_total",
			Help:      "Rule-based fallbacks after a remote diagnosis failure, by reason.",
		}, []string{"reason"}),
		DiagnosisCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnosis_cache_total",
			Help:      "Remote diagnosis cache lookups by result.",
		}, []string{"result"}),
		DiagnosisBackendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "diagnosis_backend_duration_seconds",
			Help:      "Remote diagnosis request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		DiagnosisRemoteEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "diagnosis_remote_enabled",
			Help:      "1 when the remote diagnosis backend is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PacketsConsumed,
		m.TicketsProduced,
		m.DecodeErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.Verdicts,
		m.Tickets,
		m.LateObservations,
		m.DiagnosisFallbacks,
		m.DiagnosisCache,
		m.DiagnosisBackendDuration,
		m.DiagnosisRemoteEnabled,
	}
}
