package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Executor runs independent loop bodies.
type Executor interface {
	// For calls fn for every i in [0, n) and returns the first error.
	For(ctx context.Context, n int, fn func(i int) error) error
	// Threads reports the degree of parallelism.
	Threads() int
}

// Serial runs every iteration on the calling goroutine.
type Serial struct{}

// For implements Executor.
func (Serial) For(ctx context.Context, n int, fn func(i int) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}

// Threads implements Executor.
func (Serial) Threads() int { return 1 }

// Pool runs iterations on at most Limit goroutines.
type Pool struct {
	limit int
}

// NewPool returns a Pool with the given goroutine limit, clamped to
// [1, runtime.NumCPU()]. A limit of 0 selects runtime.NumCPU().
func NewPool(limit int) *Pool {
	cpus := runtime.NumCPU()
	if limit <= 0 || limit > cpus {
		limit = cpus
	}
	return &Pool{limit: limit}
}

// For implements Executor. Iterations are split into contiguous chunks, one
// goroutine per chunk.
func (p *Pool) For(ctx context.Context, n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	if p.limit == 1 || n == 1 {
		return Serial{}.For(ctx, n, fn)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	chunks := min(p.limit, n)
	for c := 0; c < chunks; c++ {
		lo, hi := c*n/chunks, (c+1)*n/chunks
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Threads implements Executor.
func (p *Pool) Threads() int { return p.limit }

// New returns Serial for threads == 1 and a Pool otherwise.
func New(threads int) Executor {
	if threads == 1 {
		return Serial{}
	}
	return NewPool(threads)
}
