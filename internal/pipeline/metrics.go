package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/you/social-pulse/internal/core"
)

// Metrics bundles Prometheus collectors for pipeline runs.
type Metrics struct {
	runsTotal   *prometheus.CounterVec
	records     *prometheus.CounterVec
	runDuration prometheus.Histogram
	lastSuccess prometheus.Gauge
	fetchErrors *prometheus.CounterVec
	stageNoData *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "pipeline_records_total",
			Help:      "Records processed per stage",
		}, []string{"stage"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulse",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall time of pipeline runs",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulse",
			Name:      "pipeline_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "acquire_errors_total",
			Help:      "Failed acquisition calls per platform",
		}, []string{"platform"}),
		stageNoData: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "stage_no_data_total",
			Help:      "Stages that found no input for their run date",
		}, []string{"stage"}),
	}
	if reg != nil {
		reg.MustRegister(m.runsTotal, m.records, m.runDuration, m.lastSuccess, m.fetchErrors, m.stageNoData)
	}
	return m
}

func (m *Metrics) observeRun(r core.RunReport) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(r.Status).Inc()
	m.runDuration.Observe(r.Duration().Seconds())
	m.records.WithLabelValues("seen").Add(float64(r.Seen))
	m.records.WithLabelValues("dropped").Add(float64(r.Dropped))
	m.records.WithLabelValues("written").Add(float64(r.Written))
	for _, n := range r.Fixed {
		m.records.WithLabelValues("fixed").Add(float64(n))
	}
	if r.Status == core.RunStatusOK {
		m.lastSuccess.Set(float64(r.FinishedAt.Unix()))
	}
}

func (m *Metrics) incFetchError(p core.Platform) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(string(p)).Inc()
}

func (m *Metrics) incNoData(stage string) {
	if m == nil {
		return
	}
	m.stageNoData.WithLabelValues(stage).Inc()
}
