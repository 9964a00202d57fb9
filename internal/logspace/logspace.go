package logspace

import "math"

const (
	// LnLimit is the accuracy of a probability as a (negated) natural logarithm.
	// e^(-23.02585093) = 1e-10.
	LnLimit = 23.02585093

	// MinProb is the smallest probability an accumulator may hold.
	MinProb = 1.0e-24
)

// Unset marks an accumulator that has not received any contribution yet.
// Add(x, Unset) returns x.
var Unset = math.Inf(-1)

// Floor is log(MinProb). Accumulators that never receive a contribution are
// left at Floor so that later arithmetic stays finite.
var Floor = math.Log(MinProb)

// Add returns log(exp(a) + exp(b)).
func Add(a, b float64) float64 {
	x, y := a, b
	if y > x {
		x, y = y, x
	}
	if math.IsInf(y, -1) {
		return x
	}
	if math.Abs(y-x) > LnLimit {
		return x
	}
	return x + math.Log1p(math.Exp(y-x))
}

// Sum folds Add over values. The first element initialises the result; an empty
// slice yields Unset.
func Sum(values []float64) float64 {
	if len(values) == 0 {
		return Unset
	}
	acc := values[0]
	for _, v := range values[1:] {
		acc = Add(acc, v)
	}
	return acc
}

// Accumulator is a single log-space running total with first-write semantics.
type Accumulator struct {
	Value float64
	Set   bool
}

// Add folds v into the accumulator. The first contribution initialises it.
func (a *Accumulator) Add(v float64) {
	if !a.Set {
		a.Value = v
		a.Set = true
		return
	}
	a.Value = Add(a.Value, v)
}
