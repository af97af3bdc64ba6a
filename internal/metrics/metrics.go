package metrics

import (
	"NetFlowRollup/internal/engine/upserter"
	"NetFlowRollup/internal/model"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nfhourly"

// Metric label values for cycle and chunk status.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Metrics holds the collector's Prometheus metrics.
type Metrics struct {
	cycles            *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	records           *prometheus.CounterVec
	bytes             prometheus.Counter
	rows              prometheus.Counter
	chunks            *prometheus.CounterVec
	chunkDuration     *prometheus.HistogramVec
	partitionsCreated prometheus.Counter
	lastSuccess       prometheus.Gauge
	maintenanceRuns   *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of processing cycles by outcome.",
		}, []string{"status"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of processing cycles in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Total number of flow records read, by aggregation outcome.",
		}, []string{"outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepted_bytes_total",
			Help:      "Total bytes of accepted flow records.",
		}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_upserted_total",
			Help:      "Total number of hourly rows merged into storage.",
		}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Total number of upsert chunks by write path and outcome.",
		}, []string{"path", "status"}),
		chunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Duration of upsert chunks in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"path"}),
		partitionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partitions_created_total",
			Help:      "Total number of monthly partition tables created.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last fully successful processing cycle.",
		}),
		maintenanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_runs_total",
			Help:      "Total number of partition maintenance runs by outcome.",
		}, []string{"status"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.cycles, m.cycleDuration, m.records, m.bytes, m.rows,
			m.chunks, m.chunkDuration, m.partitionsCreated, m.lastSuccess, m.maintenanceRuns,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveCycle records the outcome of one processing cycle.
func (m *Metrics) ObserveCycle(report model.CycleReport, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	m.cycles.WithLabelValues(status).Inc()
	m.cycleDuration.Observe(report.Duration.Seconds())
	m.records.WithLabelValues("accepted").Add(float64(report.Accepted))
	m.records.WithLabelValues("unclassified").Add(float64(report.Unclassified))
	m.records.WithLabelValues("rejected").Add(float64(report.Rejected))
	m.bytes.Add(float64(report.Bytes))
	m.rows.Add(float64(report.Rows))
	if err == nil {
		m.lastSuccess.Set(float64(report.StartedAt.Add(report.Duration).Unix()))
	}
}

// ObserveChunk matches upserter.ChunkObserver.
func (m *Metrics) ObserveChunk(path upserter.Path, rows int, elapsed time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	m.chunks.WithLabelValues(string(path), status).Inc()
	m.chunkDuration.WithLabelValues(string(path)).Observe(elapsed.Seconds())
}

// ObserveMaintenance records a partition maintenance run.
func (m *Metrics) ObserveMaintenance(created int, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	m.maintenanceRuns.WithLabelValues(status).Inc()
	m.partitionsCreated.Add(float64(created))
}
