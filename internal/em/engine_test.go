package em

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/hupe1980/plsago/cooccur"
	"github.com/hupe1980/plsago/internal/fpe"
	"github.com/hupe1980/plsago/internal/logspace"
	"github.com/hupe1980/plsago/internal/parallel"
	"github.com/hupe1980/plsago/internal/partition"
	"github.com/hupe1980/plsago/internal/store"
	"github.com/hupe1980/plsago/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMatrix(t *testing.T, rows, cols uint32, counts map[[2]uint32]float64) *cooccur.Matrix {
	t.Helper()
	b := cooccur.NewBuilderWithDims(rows, cols)
	for cell, c := range counts {
		require.NoError(t, b.Add(cell[0], cell[1], c))
	}
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func mixture(t *testing.T) *cooccur.Matrix {
	counts := map[[2]uint32]float64{}
	for i := uint32(0); i < 4; i++ {
		for j := uint32(0); j < 4; j++ {
			c := 1.0
			if (i < 2) == (j < 2) {
				c = 20 + float64(i+j)
			}
			counts[[2]uint32{i, j}] = c
		}
	}
	return buildMatrix(t, 4, 4, counts)
}

func randomStore(clusters, a, b int) *store.Store {
	s := store.New(clusters, a, b)
	s.InitializeRandom(rand.New(rand.NewPCG(42, 1)))
	return s
}

func TestPartialJointFullBlockIsNormalised(t *testing.T) {
	ctx := context.Background()
	s := randomStore(3, 4, 5)
	joint := model.NewJoint(4, 5)

	e := New(nil, nil)
	require.NoError(t, e.PartialJoint(ctx, s.Current(), partition.Block{Start: 0, End: 3}, joint))
	assert.InDelta(t, 1.0, joint.Mass(), 1e-9)

	g := s.Current()
	want := logspace.Add(logspace.Add(g.ClusterProduct(0, 2, 3), g.ClusterProduct(1, 2, 3)), g.ClusterProduct(2, 2, 3))
	assert.InDelta(t, want, joint.At(2, 3), 1e-12)
}

func TestPartialJointBlocksMerge(t *testing.T) {
	ctx := context.Background()
	s := randomStore(5, 3, 3)
	e := New(nil, nil)

	full := model.NewJoint(3, 3)
	require.NoError(t, e.PartialJoint(ctx, s.Current(), partition.Block{Start: 0, End: 5}, full))

	merged := model.NewJoint(3, 3)
	require.NoError(t, e.PartialJoint(ctx, s.Current(), partition.BlockOf(0, 2, 5), merged))
	part := model.NewJoint(3, 3)
	require.NoError(t, e.PartialJoint(ctx, s.Current(), partition.BlockOf(1, 2, 5), part))
	require.NoError(t, merged.Merge(part.Data()))

	assert.InDeltaSlice(t, full.Data(), merged.Data(), 1e-12)
}

func TestPartialJointEmptyBlock(t *testing.T) {
	s := randomStore(2, 2, 2)
	joint := model.NewJoint(2, 2)
	joint.Set(0, 0, 0)
	require.NoError(t, New(nil, nil).PartialJoint(context.Background(), s.Current(), partition.Block{}, joint))
	assert.Equal(t, logspace.Unset, joint.At(0, 0))
}

func TestLogLikelihood(t *testing.T) {
	co := buildMatrix(t, 2, 2, map[[2]uint32]float64{{0, 0}: 5, {1, 1}: 10})
	joint := model.NewJoint(2, 2)
	joint.Set(0, 0, math.Log(0.5))
	joint.Set(1, 1, math.Log(0.25))
	joint.Set(0, 1, -100)

	ll, err := New(parallel.NewPool(2), nil).LogLikelihood(context.Background(), co, joint)
	require.NoError(t, err)
	assert.InDelta(t, 5*math.Log(0.5)+10*math.Log(0.25), ll, 1e-9)
}

// runEM performs single-worker EM iterations and returns the likelihood trace.
func runEM(t *testing.T, e *Engine, co *cooccur.Matrix, s *store.Store, iterations int) ([]float64, *model.Joint) {
	t.Helper()
	ctx := context.Background()
	block := partition.Block{Start: 0, End: uint32(s.NumClusters())}
	joint := model.NewJoint(int(co.NumTermsA()), int(co.NumTermsB()))

	var trace []float64
	for it := 0; ; it++ {
		require.NoError(t, e.PartialJoint(ctx, s.Current(), block, joint))
		ll, err := e.LogLikelihood(ctx, co, joint)
		require.NoError(t, err)
		trace = append(trace, ll)
		if it == iterations {
			return trace, joint
		}
		s.Swap()
		require.NoError(t, e.ApplyStep(ctx, s.Previous(), s.Current(), co, joint, block))
		require.Zero(t, s.NormalizeCurrent())
	}
}

func TestApplyStepMonotoneLikelihood(t *testing.T) {
	co := mixture(t)
	e := New(nil, nil)
	trace, joint := runEM(t, e, co, randomStore(2, 4, 4), 30)

	for n := 1; n < len(trace); n++ {
		assert.GreaterOrEqual(t, trace[n], trace[n-1]-1e-7, "iteration %d", n)
	}
	assert.Greater(t, trace[len(trace)-1], trace[0])
	assert.InDelta(t, 1.0, joint.Mass(), 1e-6)
	assert.Zero(t, e.Faults().Count())
}

func TestApplyStepThreadIndependent(t *testing.T) {
	co := mixture(t)
	serialTrace, serialJoint := runEM(t, New(parallel.Serial{}, nil), co, randomStore(3, 4, 4), 10)
	poolTrace, poolJoint := runEM(t, New(parallel.NewPool(4), nil), co, randomStore(3, 4, 4), 10)

	assert.Equal(t, serialTrace, poolTrace)
	assert.Equal(t, serialJoint.Data(), poolJoint.Data())
}

func TestApplyStepUnusedColumnFloor(t *testing.T) {
	co := buildMatrix(t, 2, 3, map[[2]uint32]float64{{0, 0}: 2, {1, 1}: 3})
	s := randomStore(2, 2, 3)
	joint := model.NewJoint(2, 3)
	block := partition.Block{Start: 0, End: 2}
	e := New(nil, nil)

	ctx := context.Background()
	require.NoError(t, e.PartialJoint(ctx, s.Current(), block, joint))
	s.Swap()
	require.NoError(t, e.ApplyStep(ctx, s.Previous(), s.Current(), co, joint, block))

	for k := 0; k < 2; k++ {
		assert.Equal(t, logspace.Floor, s.Current().W2.At(k, 2))
		assert.False(t, math.IsInf(s.Current().W1.At(k, 0), 0))
	}
}

func TestApplyStepOnlyTouchesBlock(t *testing.T) {
	co := mixture(t)
	s := randomStore(4, 4, 4)
	joint := model.NewJoint(4, 4)
	e := New(nil, nil)
	ctx := context.Background()

	require.NoError(t, e.PartialJoint(ctx, s.Current(), partition.Block{Start: 0, End: 4}, joint))
	s.Swap()
	s.Current().W1.Fill(7)
	require.NoError(t, e.ApplyStep(ctx, s.Previous(), s.Current(), co, joint, partition.Block{Start: 1, End: 3}))

	assert.Equal(t, 7.0, s.Current().W1.At(0, 0))
	assert.Equal(t, 7.0, s.Current().W1.At(3, 0))
	assert.NotEqual(t, 7.0, s.Current().W1.At(1, 0))
}

func TestApplyStepAbortOnFault(t *testing.T) {
	co := mixture(t)
	s := randomStore(2, 4, 4)
	joint := model.NewJoint(4, 4)
	joint.Set(0, 0, math.Inf(-1))
	e := New(nil, fpe.NewCounter(fpe.Abort))

	s.Swap()
	err := e.ApplyStep(context.Background(), s.Previous(), s.Current(), co, joint, partition.Block{Start: 0, End: 2})
	assert.ErrorIs(t, err, fpe.ErrNumericFault)
}
