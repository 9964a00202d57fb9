// Package model defines the result types shared by the trainer, the output
// writers and the exchange layer.
//
// # Joint
//
// Joint is the dense joint probability matrix p(w1, w2) over the term-A and
// term-B vocabularies, stored as natural logarithms in row-major order. The
// trainer rebuilds it every iteration and replaces it wholesale; it is never
// double-buffered.
//
//	j := model.NewJoint(numTermsA, numTermsB)
//	j.Set(i, k, logp)
//	mass := j.Mass() // Σ exp(log p), 1 for a normalised model
package model
