package plsago

import (
	"context"
	"errors"

	"github.com/hupe1980/plsago/cooccur"
	"github.com/hupe1980/plsago/transport/inproc"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// RunLocal runs a training with workers goroutine-workers connected by an
// in-process transport and returns the coordinator's result. All workers share
// co, which is never mutated.
func RunLocal(ctx context.Context, cfg Config, co *cooccur.Matrix, workers int, optFns ...Option) (*Result, error) {
	if workers < 1 {
		return nil, NewConfigError("workers", "must be positive", nil)
	}

	cluster := inproc.NewCluster(workers)
	defer cluster.Close()

	opts := append([]Option{WithRunID(ulid.Make().String())}, optFns...)

	trainers := make([]*Trainer, workers)
	for rank := range trainers {
		t, err := New(cfg, co, cluster.Node(rank), opts...)
		if err != nil {
			return nil, err
		}
		defer t.Close()
		trainers[rank] = t
	}

	results := make([]*Result, workers)
	errs := make([]error, workers)
	g, gctx := errgroup.WithContext(ctx)
	for rank, t := range trainers {
		g.Go(func() error {
			results[rank], errs[rank] = t.Run(gctx)
			if errors.Is(errs[rank], ErrDiverged) {
				return nil
			}
			return errs[rank]
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results[0], errs[0]
}
