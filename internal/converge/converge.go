// Package converge decides when the EM loop stops.
//
// A Monitor runs on the coordinator only. It is fed the log-likelihood of the
// model once per iteration and moves through
//
//	Init -> Running -> {Converged | MaxIter | Diverged}
//
// A terminal decision carries SentinelIteration so that every worker leaves the
// loop on the same broadcast value.
package converge

import (
	"fmt"
	"math"
)

// DefaultDelta is the default convergence threshold, in percent of relative
// likelihood change.
const DefaultDelta = 0.001

// SentinelIteration marks a terminal decision.
const SentinelIteration = math.MaxUint32

// State of the monitor.
type State uint8

const (
	Init State = iota
	Running
	Converged
	MaxIter
	Diverged
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Running:
		return "RUNNING"
	case Converged:
		return "CONVERGED"
	case MaxIter:
		return "MAX_ITER"
	case Diverged:
		return "DIVERGED"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Terminal reports whether s ends the loop.
func (s State) Terminal() bool {
	return s == Converged || s == MaxIter || s == Diverged
}

// Decision is the outcome of one Observe call. Iteration is the number of
// the next iteration to run, or SentinelIteration when State is terminal.
type Decision struct {
	Iteration uint32
	State     State
}

// Terminal reports whether the loop must stop.
func (d Decision) Terminal() bool { return d.Iteration == SentinelIteration }

// Monitor tracks the log-likelihood across iterations.
type Monitor struct {
	delta         float64
	maxIterations uint32

	state     State
	iteration uint32
	initial   float64
	prev      float64
	curr      float64
	change    float64
}

// NewMonitor returns a Monitor that runs at most maxIterations E/M steps. A
// delta <= 0 selects DefaultDelta.
func NewMonitor(maxIterations uint32, delta float64) *Monitor {
	if delta <= 0 {
		delta = DefaultDelta
	}
	return &Monitor{delta: delta, maxIterations: maxIterations}
}

// Observe records the log-likelihood of the current iteration and decides how
// to continue.
func (m *Monitor) Observe(ll float64) Decision {
	if m.state.Terminal() {
		return Decision{Iteration: SentinelIteration, State: m.state}
	}

	m.curr = ll
	if m.state == Init {
		m.initial = ll
		m.state = Running
	} else {
		m.change = (m.curr - m.prev) / m.prev * 100 * -1
		switch {
		case m.delta-math.Abs(m.change) > epsilon:
			m.state = Converged
		case m.curr < m.prev:
			m.state = Diverged
		}
	}
	m.prev = m.curr

	if m.state.Terminal() {
		return Decision{Iteration: SentinelIteration, State: m.state}
	}
	m.iteration++
	if m.iteration > m.maxIterations {
		m.state = MaxIter
		return Decision{Iteration: SentinelIteration, State: m.state}
	}
	return Decision{Iteration: m.iteration, State: m.state}
}

// epsilon is the double precision machine epsilon.
const epsilon = 2.220446049250313e-16

// State returns the current state.
func (m *Monitor) State() State { return m.state }

// Iteration returns the number of E/M steps decided so far.
func (m *Monitor) Iteration() uint32 { return m.iteration }

// Initial returns the baseline log-likelihood.
func (m *Monitor) Initial() float64 { return m.initial }

// Current returns the latest log-likelihood.
func (m *Monitor) Current() float64 { return m.curr }

// Change returns the latest relative change in percent, as defined for the
// convergence test.
func (m *Monitor) Change() float64 { return m.change }
