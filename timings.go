package plsago

import (
	"math"
	"time"
)

// Phase is a timed section of a run.
type Phase int

const (
	PhaseRead Phase = iota
	PhaseInit
	PhaseJoint
	PhaseLikelihood
	PhaseDistribute
	PhaseSwap
	PhaseStep
	PhaseGather
	PhaseNormalize
	PhaseOutput
	numPhases
)

var phaseNames = [numPhases]string{
	PhaseRead:       "read",
	PhaseInit:       "init",
	PhaseJoint:      "joint",
	PhaseLikelihood: "likelihood",
	PhaseDistribute: "distribute",
	PhaseSwap:       "swap",
	PhaseStep:       "em_step",
	PhaseGather:     "gather",
	PhaseNormalize:  "normalize",
	PhaseOutput:     "output",
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p >= 0 && p < numPhases {
		return phaseNames[p]
	}
	return "unknown"
}

// Phases returns every phase in report order.
func Phases() []Phase {
	out := make([]Phase, numPhases)
	for p := range out {
		out[p] = Phase(p)
	}
	return out
}

// Timings accumulates the wall time spent per phase.
type Timings struct {
	phases [numPhases]time.Duration

	// Total is the wall time of the whole run.
	Total time.Duration
	// PeakRSS is the peak resident set size of the process in bytes, 0 if
	// unknown.
	PeakRSS int64
}

// Add accumulates d for phase p.
func (t *Timings) Add(p Phase, d time.Duration) { t.phases[p] += d }

// Get returns the time spent in phase p.
func (t *Timings) Get(p Phase) time.Duration { return t.phases[p] }

// Map returns the phase durations keyed by phase name.
func (t *Timings) Map() map[string]time.Duration {
	m := make(map[string]time.Duration, numPhases)
	for p := Phase(0); p < numPhases; p++ {
		m[p.String()] = t.phases[p]
	}
	return m
}

func float64bits(f float64) uint64     { return math.Float64bits(f) }
func float64frombits(b uint64) float64 { return math.Float64frombits(b) }
