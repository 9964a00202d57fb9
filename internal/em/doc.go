// Package em implements the expectation and maximisation passes of the PLSA
// model in log space.
//
// Engine.PartialJoint folds the clusters of one block into a joint matrix.
// Engine.ApplyStep accumulates the count-weighted responsibilities
//
//	t = log n(i,j) + log p(w1=i|z=k) + log p(w2=j|z=k) + log p(z=k) - log p(i,j)
//
// of the previous generation into the unnormalised current generation, one
// goroutine per cluster. Engine.LogLikelihood scores a joint matrix against the
// observed counts.
package em
