// Package logspace implements the log-probability arithmetic used by the EM engine.
//
// All probabilities are stored as natural logarithms. Sums of probabilities are
// computed with a thresholded log-sum-exp:
//
//	Add(a, b) = max(a, b) + log1p(exp(min(a, b) - max(a, b)))
//
// When the two exponents differ by more than LnLimit the smaller term is below the
// accuracy of the representation (about 1e-10 relative) and the larger term is
// returned unchanged.
package logspace
