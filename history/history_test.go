package history

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/hupe1980/plsago"
	"github.com/hupe1980/plsago/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordsRun(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	cfg := plsago.DefaultConfig()
	cfg.NumClusters = 2
	cfg.MaxIterations = 30
	cfg.Seed = 99

	co := testutil.BlockMixture(2, 4, 4, 0.1).Matrix(500)
	res, err := plsago.RunLocal(ctx, cfg, co, 2,
		plsago.WithLogger(plsago.NoopLogger()), plsago.WithObserver(s))
	require.NoError(t, err)

	run, err := s.Run(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), run.Clusters)
	assert.Equal(t, uint32(30), run.MaxIterations)
	assert.Equal(t, uint64(99), run.Seed)
	assert.Equal(t, 2, run.Workers)
	assert.Equal(t, uint32(4), run.TermsA)
	assert.Equal(t, res.State.String(), run.State)
	assert.Equal(t, res.Iterations, run.Iterations)
	assert.Equal(t, res.FinalLogLikelihood, run.FinalLL)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	its, err := s.Iterations(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, its, len(res.Trace))
	for n, it := range its {
		assert.Equal(t, uint32(n), it.Iteration)
		assert.Equal(t, res.Trace[n], it.LogLikelihood)
	}
	assert.True(t, math.IsNaN(its[0].Change))
	assert.Equal(t, res.State.String(), its[len(its)-1].State)

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].RunID)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	info := plsago.RunInfo{RunID: "r1", Config: plsago.DefaultConfig(), Workers: 1, TermsA: 2, TermsB: 2, NonZeros: 4}
	require.NoError(t, s.OnStart(ctx, info))
	require.NoError(t, s.OnIteration(ctx, plsago.IterationInfo{RunID: "r1", LogLikelihood: -10, State: plsago.StateRunning}))

	run, err := s.Run(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", run.State)
	assert.True(t, run.FinishedAt.IsZero())

	require.NoError(t, s.Delete(ctx, "r1"))
	_, err = s.Run(ctx, "r1")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "r1"), ErrRunNotFound)

	its, err := s.Iterations(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, its)
}

func TestDuplicateRunRejected(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	info := plsago.RunInfo{RunID: "dup", Config: plsago.DefaultConfig()}
	require.NoError(t, s.OnStart(ctx, info))
	assert.Error(t, s.OnStart(ctx, info))
}
