// Package promcollector exports training metrics to Prometheus.
//
//	c := promcollector.New(prometheus.DefaultRegisterer)
//	res, err := plsago.RunLocal(ctx, cfg, co, 4, plsago.WithMetricsCollector(c))
package promcollector

import (
	"time"

	"github.com/hupe1980/plsago"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements plsago.MetricsCollector with Prometheus metrics.
type Collector struct {
	iterations      prometheus.Counter
	iterationTime   prometheus.Histogram
	logLikelihood   prometheus.Gauge
	currentIter     prometheus.Gauge
	phaseSeconds    *prometheus.CounterVec
	numericFaults   prometheus.Counter
	snapshots       *prometheus.CounterVec
	snapshotLatency prometheus.Histogram
	terminations    *prometheus.CounterVec
}

var _ plsago.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg. A nil reg
// leaves the metrics unregistered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plsa_iterations_total",
			Help: "Total EM iterations evaluated",
		}),
		iterationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plsa_iteration_duration_seconds",
			Help:    "Wall time from barrier to likelihood per iteration",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		logLikelihood: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plsa_log_likelihood",
			Help: "Log-likelihood of the latest iteration",
		}),
		currentIter: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plsa_iteration",
			Help: "Number of the latest evaluated iteration",
		}),
		phaseSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plsa_phase_seconds_total",
			Help: "Wall time spent per phase",
		}, []string{"phase"}),
		numericFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plsa_numeric_faults_total",
			Help: "Non-finite values produced by the EM step",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plsa_snapshots_total",
			Help: "Snapshots written",
		}, []string{"status"}),
		snapshotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plsa_snapshot_duration_seconds",
			Help:    "Latency of snapshot writes",
			Buckets: prometheus.DefBuckets,
		}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plsa_runs_total",
			Help: "Finished runs by terminal state",
		}, []string{"state"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.iterations,
			c.iterationTime,
			c.logLikelihood,
			c.currentIter,
			c.phaseSeconds,
			c.numericFaults,
			c.snapshots,
			c.snapshotLatency,
			c.terminations,
		)
	}
	return c
}

// RecordIteration implements plsago.MetricsCollector.
func (c *Collector) RecordIteration(iteration uint32, logLikelihood float64, duration time.Duration) {
	c.iterations.Inc()
	c.iterationTime.Observe(duration.Seconds())
	c.logLikelihood.Set(logLikelihood)
	c.currentIter.Set(float64(iteration))
}

// RecordPhase implements plsago.MetricsCollector.
func (c *Collector) RecordPhase(phase plsago.Phase, duration time.Duration) {
	c.phaseSeconds.WithLabelValues(phase.String()).Add(duration.Seconds())
}

// RecordNumericFaults implements plsago.MetricsCollector.
func (c *Collector) RecordNumericFaults(n uint64) {
	c.numericFaults.Add(float64(n))
}

// RecordSnapshot implements plsago.MetricsCollector.
func (c *Collector) RecordSnapshot(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.snapshots.WithLabelValues(status).Inc()
	c.snapshotLatency.Observe(duration.Seconds())
}

// RecordTermination implements plsago.MetricsCollector.
func (c *Collector) RecordTermination(state plsago.State, _ uint32) {
	c.terminations.WithLabelValues(state.String()).Inc()
}
