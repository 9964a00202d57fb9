// Package transport defines the point-to-point messaging used between workers.
//
// A Transport connects one worker (its Rank) to the other Size-1 workers of a
// run. Messages are vectors of float64 values identified by an integer tag.
// Receives match on (sender, tag), so messages for different tags may arrive
// in any order. Transports never retry; any failure is returned to the caller.
//
// Implementations:
//
//   - Local: a single worker, no peers
//   - inproc: workers as goroutines of one process
//   - tcp: workers as processes connected by a full TCP mesh
package transport
