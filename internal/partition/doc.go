// Package partition splits the latent cluster index space across workers.
//
// Worker id of p workers owns the half-open block
//
//	[id*n/p, (id+1)*n/p)
//
// of the n clusters. Blocks are contiguous, disjoint and together cover [0, n).
// The owner of a cluster is computed in O(1) without searching.
package partition
