// Package parallel provides the thread-level parallel-for used inside a worker.
//
// Executor.For runs fn(i) for every i in [0, n). Serial runs on the calling
// goroutine; Pool fans out over an errgroup bounded to a fixed number of
// goroutines. Work items must not share mutable state.
package parallel
