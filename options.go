package plsago

import (
	"time"

	"github.com/hupe1980/plsago/internal/fpe"
	"github.com/hupe1980/plsago/internal/parallel"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	executor         parallel.Executor
	output           Output
	observers        []Observer
	faultPolicy      fpe.Policy
	runID            string
	readDuration     time.Duration
	memoryLimit      int64
}

// Option configures a Trainer.
type Option func(*options)

// WithLogger configures the logger. Pass nil to disable logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring runs.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &plsago.BasicMetricsCollector{}
//	t, _ := plsago.New(cfg, co, transport.Local{}, plsago.WithMetricsCollector(metrics))
//	_, _ = t.Run(ctx)
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithThreads runs the per-worker loops on n goroutines, overriding
// Config.Threads.
func WithThreads(n int) Option {
	return func(o *options) {
		o.executor = parallel.New(n)
	}
}

// WithOutput configures where the joint matrix is written. Without an output
// nothing is written.
func WithOutput(out Output) Option {
	return func(o *options) {
		o.output = out
	}
}

// WithObserver registers an observer of the coordinator's progress.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithAbortOnNumericFault makes floating-point faults fatal. By default they
// are counted and reported at shutdown.
func WithAbortOnNumericFault() Option {
	return func(o *options) {
		o.faultPolicy = fpe.Abort
	}
}

// WithFaultPolicy sets the floating-point fault policy by name ("count" or
// "abort"). Unknown names keep the default.
func WithFaultPolicy(name string) Option {
	return func(o *options) {
		if p, err := fpe.ParsePolicy(name); err == nil {
			o.faultPolicy = p
		}
	}
}

// WithRunID sets the run identifier. All workers of a run should share it.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

// WithReadDuration records the time spent loading the input, for the timing
// report.
func WithReadDuration(d time.Duration) Option {
	return func(o *options) {
		o.readDuration = d
	}
}

// WithMemoryLimit bounds the memory of the probability tables and the joint
// matrix. 0 means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}
