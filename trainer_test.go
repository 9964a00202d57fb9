package plsago

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/plsago/cooccur"
	"github.com/hupe1980/plsago/internal/resource"
	"github.com/hupe1980/plsago/model"
	"github.com/hupe1980/plsago/testutil"
	"github.com/hupe1980/plsago/transport"
	"github.com/hupe1980/plsago/transport/inproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioMatrix(t *testing.T) *cooccur.Matrix {
	t.Helper()
	co, err := cooccur.ReadText(strings.NewReader("0 0 5\n0 1 3\n1 0 2\n1 1 10\n"))
	require.NoError(t, err)
	return co
}

func testConfig(clusters, maxIter uint32) Config {
	cfg := DefaultConfig()
	cfg.NumClusters = clusters
	cfg.MaxIterations = maxIter
	cfg.Seed = 20240601
	return cfg
}

func quiet() Option { return WithLogger(NoopLogger()) }

func assertNonDecreasing(t *testing.T, trace []float64) {
	t.Helper()
	for n := 1; n < len(trace); n++ {
		assert.GreaterOrEqual(t, trace[n], trace[n-1]-1e-7, "iteration %d", n)
	}
}

func TestTrainer(t *testing.T) {
	t.Run("Scenario2x2", func(t *testing.T) {
		co := scenarioMatrix(t)
		tr, err := New(testConfig(2, 50), co, transport.Local{}, quiet())
		require.NoError(t, err)

		res, err := tr.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, StateConverged, res.State)
		assert.Greater(t, res.FinalLogLikelihood, res.InitialLogLikelihood)
		assert.Equal(t, res.Trace[0], res.InitialLogLikelihood)
		assertNonDecreasing(t, res.Trace)

		// The joint is a distribution, so expected counts total×p sum to the
		// observed count mass.
		total := co.TotalCount()
		assert.InDelta(t, 1.0, res.Joint.Mass(), 1e-6)
		assert.InDelta(t, total, total*res.Joint.Mass(), 1e-4)
	})

	t.Run("MixtureConverges", func(t *testing.T) {
		co := testutil.BlockMixture(2, 4, 4, 0.1).Matrix(1000)
		tr, err := New(testConfig(2, 500), co, transport.Local{}, quiet())
		require.NoError(t, err)

		res, err := tr.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, StateConverged, res.State)
		assert.Less(t, res.Iterations, uint32(500))
		assert.Len(t, res.Trace, int(res.Iterations)+1)
		assertNonDecreasing(t, res.Trace)
		assert.Zero(t, res.NumericFaults)
	})

	t.Run("MaxIter", func(t *testing.T) {
		// Early EM steps on a block mixture climb well above the tolerance.
		co := testutil.BlockMixture(2, 4, 4, 0.1).Matrix(1000)
		cfg := testConfig(2, 3)
		cfg.ConvergenceDelta = 1e-12
		tr, err := New(cfg, co, transport.Local{}, quiet())
		require.NoError(t, err)

		res, err := tr.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateMaxIter, res.State)
		assert.Equal(t, uint32(3), res.Iterations)
		assert.Len(t, res.Trace, 4)
	})

	t.Run("SameSeedSameResult", func(t *testing.T) {
		co := scenarioMatrix(t)
		run := func() *Result {
			tr, err := New(testConfig(2, 10), co, transport.Local{}, quiet())
			require.NoError(t, err)
			res, err := tr.Run(context.Background())
			require.NoError(t, err)
			return res
		}
		a, b := run(), run()
		assert.Equal(t, a.Trace, b.Trace)
		assert.Equal(t, a.Joint.Data(), b.Joint.Data())
	})
}

func TestSingleWorkerEquivalence(t *testing.T) {
	co := testutil.RandomMixture(testutil.NewRNG(11), 4, 7, 6).Matrix(800)
	cfg := testConfig(5, 25)
	ctx := context.Background()

	single, err := RunLocal(ctx, cfg, co, 1, quiet())
	require.NoError(t, err)

	for _, workers := range []int{2, 3, 5} {
		multi, err := RunLocal(ctx, cfg, co, workers, quiet())
		require.NoError(t, err, "workers=%d", workers)

		assert.Equal(t, workers, multi.Workers)
		assert.Equal(t, single.State, multi.State)
		require.Len(t, multi.Trace, len(single.Trace), "workers=%d", workers)
		assert.InDeltaSlice(t, single.Trace, multi.Trace, 1e-8)
		assert.InDeltaSlice(t, single.Joint.Data(), multi.Joint.Data(), 1e-9)
		assert.Positive(t, multi.MessagesSent)
	}
}

func TestRunLocalRaisesClusters(t *testing.T) {
	co := scenarioMatrix(t)
	res, err := RunLocal(context.Background(), testConfig(1, 5), co, 3, quiet())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), res.Clusters)
	assert.Equal(t, 3, res.Workers)
}

func TestExplicitCluster(t *testing.T) {
	// Two workers over an explicitly built in-process cluster behave like
	// RunLocal.
	co := scenarioMatrix(t)
	cfg := testConfig(2, 10)
	ctx := context.Background()

	c := inproc.NewCluster(2)
	defer c.Close()

	results := make([]*Result, 2)
	var wg sync.WaitGroup
	for rank := 0; rank < 2; rank++ {
		tr, err := New(cfg, co, c.Node(rank), quiet(), WithRunID("run"))
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := tr.Run(ctx)
			assert.NoError(t, err)
			results[rank] = res
		}()
	}
	wg.Wait()

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, results[0].State, results[1].State)
	assert.Equal(t, results[0].Iterations, results[1].Iterations)
	assert.Equal(t, results[0].Joint.Data(), results[1].Joint.Data())
	assert.Empty(t, results[1].Trace)
	assert.Equal(t, "run", results[1].RunID)
}

type recordingOutput struct {
	mu        sync.Mutex
	snapshots []uint32
	finals    int
	mass      float64
}

func (r *recordingOutput) WriteSnapshot(_ context.Context, iteration uint32, _ *model.Joint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, iteration)
	return nil
}

func (r *recordingOutput) WriteFinal(_ context.Context, joint *model.Joint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finals++
	r.mass = joint.Mass()
	return nil
}

func TestOutput(t *testing.T) {
	co := testutil.RandomMixture(testutil.NewRNG(2), 2, 5, 5).Matrix(400)

	t.Run("Snapshots", func(t *testing.T) {
		out := &recordingOutput{}
		cfg := testConfig(2, 6)
		cfg.SnapshotInterval = 2
		res, err := RunLocal(context.Background(), cfg, co, 2, quiet(), WithOutput(out))
		require.NoError(t, err)

		want := []uint32{0}
		for it := uint32(1); it <= res.Iterations; it++ {
			if it%2 == 0 || it == 1 {
				want = append(want, it)
			}
		}
		assert.Equal(t, want, out.snapshots)
		assert.Equal(t, 1, out.finals)
		assert.InDelta(t, 1.0, out.mass, 1e-6)
	})

	t.Run("NoSnapshots", func(t *testing.T) {
		out := &recordingOutput{}
		_, err := RunLocal(context.Background(), testConfig(2, 6), co, 1, quiet(), WithOutput(out))
		require.NoError(t, err)
		assert.Empty(t, out.snapshots)
		assert.Equal(t, 1, out.finals)
	})

	t.Run("Suppressed", func(t *testing.T) {
		out := &recordingOutput{}
		cfg := testConfig(2, 6)
		cfg.SnapshotInterval = 1
		cfg.SuppressOutput = true
		_, err := RunLocal(context.Background(), cfg, co, 1, quiet(), WithOutput(out))
		require.NoError(t, err)
		assert.Empty(t, out.snapshots)
		assert.Zero(t, out.finals)
	})

	t.Run("WriteError", func(t *testing.T) {
		boom := errors.New("disk full")
		_, err := RunLocal(context.Background(), testConfig(2, 3), co, 1, quiet(), WithOutput(failingOutput{boom}))
		assert.ErrorIs(t, err, boom)
	})
}

type failingOutput struct{ err error }

func (f failingOutput) WriteSnapshot(context.Context, uint32, *model.Joint) error { return f.err }
func (f failingOutput) WriteFinal(context.Context, *model.Joint) error            { return f.err }

type countingObserver struct {
	starts, iterations, finishes int
	last                         IterationInfo
}

func (c *countingObserver) OnStart(context.Context, RunInfo) error { c.starts++; return nil }
func (c *countingObserver) OnIteration(_ context.Context, info IterationInfo) error {
	c.iterations++
	c.last = info
	return nil
}
func (c *countingObserver) OnFinish(context.Context, *Result) error { c.finishes++; return nil }

func TestObserverAndMetrics(t *testing.T) {
	co := scenarioMatrix(t)
	obs := &countingObserver{}
	metrics := &BasicMetricsCollector{}

	res, err := RunLocal(context.Background(), testConfig(2, 20), co, 2, quiet(),
		WithObserver(obs), WithMetricsCollector(metrics))
	require.NoError(t, err)

	assert.Equal(t, 1, obs.starts)
	assert.Equal(t, len(res.Trace), obs.iterations)
	assert.Equal(t, 1, obs.finishes)
	assert.Equal(t, res.State, obs.last.State)
	assert.Equal(t, res.RunID, obs.last.RunID)

	stats := metrics.GetStats()
	assert.Equal(t, int64(len(res.Trace)), stats.Iterations)
	assert.Equal(t, res.FinalLogLikelihood, stats.LastLogLikelihood)
	assert.Equal(t, res.State, stats.State)
	assert.Positive(t, stats.PhaseNanos[PhaseJoint])
}

func TestConfigValidation(t *testing.T) {
	co := scenarioMatrix(t)
	tests := []struct {
		name   string
		mutate func(*Config)
		is     error
	}{
		{"zero clusters", func(c *Config) { c.NumClusters = 0 }, ErrInvalidConfig},
		{"too many clusters", func(c *Config) { c.NumClusters = MaxClusters }, ErrTooManyClusters},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }, ErrInvalidConfig},
		{"iterations beyond tags", func(c *Config) { c.MaxIterations = MaxIterations + 1 }, ErrInvalidConfig},
		{"negative threads", func(c *Config) { c.Threads = -1 }, ErrInvalidConfig},
		{"negative delta", func(c *Config) { c.ConvergenceDelta = -1 }, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(2, 10)
			tt.mutate(&cfg)
			_, err := New(cfg, co, transport.Local{}, quiet())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)

			var ce *ConfigError
			assert.ErrorAs(t, err, &ce)
		})
	}

	_, err := New(testConfig(2, 10), nil, nil, quiet())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = RunLocal(context.Background(), testConfig(2, 10), co, 0, quiet())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMemoryLimit(t *testing.T) {
	co := scenarioMatrix(t)
	_, err := New(testConfig(2, 10), co, transport.Local{}, quiet(), WithMemoryLimit(64))
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)

	tr, err := New(testConfig(2, 10), co, transport.Local{}, quiet(), WithMemoryLimit(1<<20))
	require.NoError(t, err)
	tr.Close()
}

func TestRandomSeedWhenZero(t *testing.T) {
	cfg := testConfig(2, 10)
	cfg.Seed = 0
	tr, err := New(cfg, scenarioMatrix(t), transport.Local{}, quiet())
	require.NoError(t, err)
	assert.NotZero(t, tr.Seed())
	assert.NotEmpty(t, tr.RunID())
}

func TestCancelledRun(t *testing.T) {
	co := scenarioMatrix(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunLocal(ctx, testConfig(2, 10), co, 2, quiet())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimings(t *testing.T) {
	co := scenarioMatrix(t)
	cfg := testConfig(2, 5)
	cfg.Verbose = true
	tr, err := New(cfg, co, transport.Local{}, quiet(), WithReadDuration(time.Millisecond))
	require.NoError(t, err)
	res, err := tr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Millisecond, res.Timings.Get(PhaseRead))
	assert.GreaterOrEqual(t, res.Timings.Total, time.Millisecond)
	assert.Len(t, res.Timings.Map(), len(Phases()))
	assert.Equal(t, "em_step", PhaseStep.String())
	assert.False(t, math.IsNaN(res.FinalLogLikelihood))
}
