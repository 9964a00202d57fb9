package plsago

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting training metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus (see package promcollector).
//
// Only the coordinator reports iterations, terminations and snapshots; every
// worker reports phases.
type MetricsCollector interface {
	// RecordIteration is called after the likelihood of an iteration is known.
	RecordIteration(iteration uint32, logLikelihood float64, duration time.Duration)

	// RecordPhase is called after each timed phase of an iteration.
	RecordPhase(phase Phase, duration time.Duration)

	// RecordNumericFaults is called at shutdown with the fault count.
	RecordNumericFaults(n uint64)

	// RecordSnapshot is called after each snapshot write.
	RecordSnapshot(duration time.Duration, err error)

	// RecordTermination is called once when the loop ends.
	RecordTermination(state State, iterations uint32)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIteration(uint32, float64, time.Duration) {}
func (NoopMetricsCollector) RecordPhase(Phase, time.Duration)               {}
func (NoopMetricsCollector) RecordNumericFaults(uint64)                     {}
func (NoopMetricsCollector) RecordSnapshot(time.Duration, error)            {}
func (NoopMetricsCollector) RecordTermination(State, uint32)                {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	Iterations         atomic.Int64
	IterationNanos     atomic.Int64
	LastLogLikelihood  atomic.Uint64 // math.Float64bits
	PhaseNanos         [numPhases]atomic.Int64
	NumericFaults      atomic.Uint64
	Snapshots          atomic.Int64
	SnapshotErrors     atomic.Int64
	Terminations       atomic.Int64
	LastState          atomic.Uint32
	LastIterationCount atomic.Uint32
}

// RecordIteration implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIteration(_ uint32, logLikelihood float64, duration time.Duration) {
	b.Iterations.Add(1)
	b.IterationNanos.Add(duration.Nanoseconds())
	b.LastLogLikelihood.Store(float64bits(logLikelihood))
}

// RecordPhase implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPhase(phase Phase, duration time.Duration) {
	if phase < numPhases {
		b.PhaseNanos[phase].Add(duration.Nanoseconds())
	}
}

// RecordNumericFaults implements MetricsCollector.
func (b *BasicMetricsCollector) RecordNumericFaults(n uint64) {
	b.NumericFaults.Add(n)
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(_ time.Duration, err error) {
	b.Snapshots.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// RecordTermination implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTermination(state State, iterations uint32) {
	b.Terminations.Add(1)
	b.LastState.Store(uint32(state))
	b.LastIterationCount.Store(iterations)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		Iterations:        b.Iterations.Load(),
		LastLogLikelihood: float64frombits(b.LastLogLikelihood.Load()),
		NumericFaults:     b.NumericFaults.Load(),
		Snapshots:         b.Snapshots.Load(),
		SnapshotErrors:    b.SnapshotErrors.Load(),
		State:             State(b.LastState.Load()),
	}
	if s.Iterations > 0 {
		s.AvgIterationNanos = b.IterationNanos.Load() / s.Iterations
	}
	for p := range s.PhaseNanos {
		s.PhaseNanos[p] = b.PhaseNanos[p].Load()
	}
	return s
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Iterations        int64
	AvgIterationNanos int64
	LastLogLikelihood float64
	PhaseNanos        [numPhases]int64
	NumericFaults     uint64
	Snapshots         int64
	SnapshotErrors    int64
	State             State
}
