package exchange

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/hupe1980/plsago/internal/converge"
	"github.com/hupe1980/plsago/internal/logspace"
	"github.com/hupe1980/plsago/internal/store"
	"github.com/hupe1980/plsago/model"
	"github.com/hupe1980/plsago/transport"
	"github.com/hupe1980/plsago/transport/inproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	clusters = 7
	termsA   = 3
	termsB   = 4
)

// onAll runs fn concurrently for every worker of an in-process cluster.
func onAll(t *testing.T, workers int, fn func(ctx context.Context, x *Exchange) error) {
	t.Helper()
	c := inproc.NewCluster(workers)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, tr := range c.Transports() {
		g.Go(func() error { return fn(gctx, New(tr, clusters)) })
	}
	require.NoError(t, g.Wait())
}

func TestBlocksCoverClusters(t *testing.T) {
	x := New(transport.Local{}, clusters)
	assert.True(t, x.IsCoordinator())
	assert.Equal(t, uint32(0), x.Block().Start)
	assert.Equal(t, uint32(clusters), x.Block().End)
}

func TestScatterThenGather(t *testing.T) {
	src := store.New(clusters, termsA, termsB)
	src.InitializeRandom(rand.New(rand.NewPCG(3, 4)))
	want := src.Current()

	onAll(t, 3, func(ctx context.Context, x *Exchange) error {
		s := store.New(clusters, termsA, termsB)
		if x.IsCoordinator() {
			s = src
		}
		gen := s.Current()
		if err := x.Scatter(ctx, 0, gen); err != nil {
			return err
		}

		block := x.Block()
		if !x.IsCoordinator() {
			for k := block.Start; k < block.End; k++ {
				assert.Equal(t, want.W1.Row(int(k)), gen.W1.Row(int(k)))
				assert.Equal(t, want.W2.Row(int(k)), gen.W2.Row(int(k)))
				assert.Equal(t, want.PriorOf(int(k)), gen.PriorOf(int(k)))
			}
			// Outside the block nothing was received.
			assert.Equal(t, 0.0, gen.PriorOf(0))

			// Workers update their own clusters and send them back.
			for k := block.Start; k < block.End; k++ {
				gen.SetPrior(int(k), -float64(k))
			}
		}
		if err := x.Gather(ctx, 1, gen); err != nil {
			return err
		}
		if x.IsCoordinator() {
			for k := block.End; k < clusters; k++ {
				assert.Equal(t, -float64(k), gen.PriorOf(int(k)))
			}
		}
		return nil
	})
}

func TestReduceAndBroadcastJoint(t *testing.T) {
	onAll(t, 3, func(ctx context.Context, x *Exchange) error {
		joint := model.NewJoint(termsA, termsB)
		for i := 0; i < termsA; i++ {
			for j := 0; j < termsB; j++ {
				joint.Set(i, j, math.Log(float64(x.Rank()+1)))
			}
		}
		if err := x.ReduceJoint(ctx, 2, joint); err != nil {
			return err
		}
		if x.IsCoordinator() {
			assert.InDelta(t, math.Log(6), joint.At(1, 2), 1e-12)
		}

		if err := x.BroadcastJoint(ctx, 2, joint); err != nil {
			return err
		}
		for _, v := range joint.Data() {
			assert.InDelta(t, math.Log(6), v, 1e-12)
		}
		return nil
	})
}

func TestBroadcastDecisionAndBarrier(t *testing.T) {
	onAll(t, 4, func(ctx context.Context, x *Exchange) error {
		for round := uint32(0); round < 3; round++ {
			if err := x.Barrier(ctx, round); err != nil {
				return err
			}
			d := converge.Decision{}
			if x.IsCoordinator() {
				d = converge.Decision{Iteration: round + 1, State: converge.Running}
				if round == 2 {
					d = converge.Decision{Iteration: converge.SentinelIteration, State: converge.Converged}
				}
			}
			got, err := x.BroadcastDecision(ctx, round, d)
			if err != nil {
				return err
			}
			if round == 2 {
				assert.True(t, got.Terminal())
				assert.Equal(t, converge.Converged, got.State)
			} else {
				assert.Equal(t, round+1, got.Iteration)
			}
		}
		return nil
	})
}

func TestSingleWorkerNoops(t *testing.T) {
	ctx := context.Background()
	x := New(transport.Local{}, clusters)
	s := store.New(clusters, termsA, termsB)
	joint := model.NewJoint(termsA, termsB)

	require.NoError(t, x.Barrier(ctx, 0))
	require.NoError(t, x.Scatter(ctx, 0, s.Current()))
	require.NoError(t, x.Gather(ctx, 0, s.Current()))
	require.NoError(t, x.ReduceJoint(ctx, 0, joint))
	require.NoError(t, x.BroadcastJoint(ctx, 0, joint))
	d, err := x.BroadcastDecision(ctx, 0, converge.Decision{Iteration: 1, State: converge.Running})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), d.Iteration)
	assert.Equal(t, logspace.Unset, joint.At(0, 0))
	assert.Zero(t, x.Stats().Sent)
}

func TestErrorCarriesPeerAndTag(t *testing.T) {
	c := inproc.NewCluster(2)
	require.NoError(t, c.Node(1).Close())

	x := New(c.Node(0), clusters)
	err := x.BroadcastJoint(context.Background(), 4, model.NewJoint(1, 1))

	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, 1, xerr.Peer)
	assert.Equal(t, Tag(4, KindJoint, 1), xerr.Tag)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.Contains(t, err.Error(), "joint")
}
