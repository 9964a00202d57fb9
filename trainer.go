package plsago

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hupe1980/plsago/cooccur"
	"github.com/hupe1980/plsago/internal/converge"
	"github.com/hupe1980/plsago/internal/em"
	"github.com/hupe1980/plsago/internal/exchange"
	"github.com/hupe1980/plsago/internal/fpe"
	"github.com/hupe1980/plsago/internal/parallel"
	"github.com/hupe1980/plsago/internal/resource"
	"github.com/hupe1980/plsago/internal/store"
	"github.com/hupe1980/plsago/model"
	"github.com/hupe1980/plsago/transport"
	"github.com/oklog/ulid/v2"
)

// Trainer runs the distributed EM loop for one worker.
//
// Every worker of a run builds its own Trainer from the same Config and
// co-occurrence matrix, with its own transport. Worker 0 coordinates: it draws
// the initial tables, evaluates the likelihood, decides when to stop and writes
// the output.
type Trainer struct {
	cfg  Config
	seed uint64
	opts options

	co      *cooccur.Matrix
	store   *store.Store
	joint   *model.Joint
	engine  *em.Engine
	xchg    *exchange.Exchange
	monitor *converge.Monitor
	faults  *fpe.Counter
	budget  *resource.Controller
	logger  *Logger
	metrics MetricsCollector

	timings Timings
}

// New validates cfg and allocates the tables of one worker. If there are more
// workers than clusters, the cluster count is raised to the worker count.
func New(cfg Config, co *cooccur.Matrix, tr transport.Transport, optFns ...Option) (*Trainer, error) {
	if co == nil {
		return nil, NewConfigError("cooccur", "no co-occurrence matrix", nil)
	}
	if tr == nil {
		tr = transport.Local{}
	}

	o := options{
		logger:           NewLogger(nil),
		metricsCollector: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.runID == "" {
		o.runID = ulid.Make().String()
	}

	logger := o.logger.WithRunID(o.runID)
	if tr.Rank() != exchange.Coordinator {
		logger = logger.WithWorker(tr.Rank())
	}

	cfg, raised := cfg.ForWorkers(tr.Size())
	if raised {
		logger.Warn("more workers than clusters, raising cluster count", "clusters", cfg.NumClusters)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if o.executor == nil {
		o.executor = parallel.New(cfg.threads())
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	clusters := int(cfg.NumClusters)
	termsA, termsB := int(co.NumTermsA()), int(co.NumTermsB())

	budget := resource.NewController(resource.Config{MemoryLimitBytes: o.memoryLimit})
	need := store.Bytes(clusters, termsA, termsB) + 2*8*int64(termsA)*int64(termsB)
	if err := budget.AcquireMemory(need); err != nil {
		return nil, fmt.Errorf("allocate %d bytes of tables: %w", need, err)
	}

	faults := fpe.NewCounter(o.faultPolicy)
	t := &Trainer{
		cfg:     cfg,
		seed:    seed,
		opts:    o,
		co:      co,
		store:   store.New(clusters, termsA, termsB),
		joint:   model.NewJoint(termsA, termsB),
		engine:  em.New(o.executor, faults),
		xchg:    exchange.New(tr, cfg.NumClusters),
		monitor: converge.NewMonitor(cfg.MaxIterations, cfg.convergenceDelta()),
		faults:  faults,
		budget:  budget,
		logger:  logger,
		metrics: o.metricsCollector,
	}
	t.timings.Add(PhaseRead, o.readDuration)
	return t, nil
}

// Config returns the effective configuration.
func (t *Trainer) Config() Config { return t.cfg }

// Seed returns the seed of the random initialisation.
func (t *Trainer) Seed() uint64 { return t.seed }

// RunID returns the run identifier.
func (t *Trainer) RunID() string { return t.opts.runID }

// Close releases the tables.
func (t *Trainer) Close() {
	t.budget.ReleaseMemory(t.budget.MemoryUsage())
	t.store = nil
	t.joint = nil
}

func (t *Trainer) timed(p Phase, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	t.timings.Add(p, d)
	t.metrics.RecordPhase(p, d)
	return err
}

// Run executes the EM loop until a terminal state is reached. All workers of
// a run must call Run concurrently.
//
// A diverged run returns its Result together with an error wrapping
// ErrDiverged.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	coordinator := t.xchg.IsCoordinator()

	if t.cfg.Verbose {
		t.logger.LogSettings(ctx, t.cfg, t.seed, t.xchg.Rank(), t.xchg.Workers(), t.xchg.Block().String(), t.opts.executor.Threads())
		if coordinator {
			t.logger.LogMatrix(ctx, t.co)
		}
	}
	if coordinator {
		t.logger.LogOccupancy(ctx, t.co)
		if err := t.notifyStart(ctx); err != nil {
			return nil, err
		}
	}

	err := t.timed(PhaseInit, func() error {
		if coordinator {
			t.store.InitializeRandom(rand.New(rand.NewPCG(t.seed, t.seed)))
		}
		return t.xchg.Scatter(ctx, 0, t.store.Current())
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:    t.opts.runID,
		Rank:     t.xchg.Rank(),
		Workers:  t.xchg.Workers(),
		Clusters: t.cfg.NumClusters,
		Seed:     t.seed,
	}

	iter := uint32(0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := t.evaluate(ctx, iter, result)
		if err != nil {
			return nil, err
		}
		if d.Terminal() {
			result.State = d.State
			break
		}
		iter = d.Iteration
		if err := t.step(ctx, iter); err != nil {
			return nil, err
		}
	}

	result.Iterations = iter
	result.Joint = t.joint
	result.NumericFaults = t.faults.Count()
	stats := t.xchg.Stats()
	result.MessagesSent, result.MessagesReceived = stats.Sent, stats.Received

	if coordinator {
		result.InitialLogLikelihood = t.monitor.Initial()
		result.FinalLogLikelihood = t.monitor.Current()
		if !t.cfg.SuppressOutput && t.opts.output != nil {
			err := t.timed(PhaseOutput, func() error { return t.opts.output.WriteFinal(ctx, t.joint) })
			if err != nil {
				return nil, fmt.Errorf("write output: %w", err)
			}
		}
	}

	t.timings.Total = time.Since(start) + t.timings.Get(PhaseRead)
	t.timings.PeakRSS = peakRSS()
	result.Timings = t.timings

	t.logger.LogNumericFaults(ctx, result.NumericFaults)
	t.metrics.RecordNumericFaults(result.NumericFaults)
	if coordinator {
		t.logger.LogTermination(ctx, result)
		t.metrics.RecordTermination(result.State, result.Iterations)
		if err := t.notifyFinish(ctx, result); err != nil {
			return nil, err
		}
	}
	if t.cfg.Verbose {
		t.logger.LogTimings(ctx, &t.timings)
	}

	if result.State == StateDiverged {
		return result, fmt.Errorf("after %d iterations: %w", result.Iterations, ErrDiverged)
	}
	return result, nil
}

// evaluate computes the joint matrix of the current generation and agrees on
// how to continue.
func (t *Trainer) evaluate(ctx context.Context, iter uint32, result *Result) (converge.Decision, error) {
	var d converge.Decision
	roundStart := time.Now()
	coordinator := t.xchg.IsCoordinator()

	if err := t.timed(PhaseDistribute, func() error { return t.xchg.Barrier(ctx, iter) }); err != nil {
		return d, err
	}

	err := t.timed(PhaseJoint, func() error {
		if err := t.engine.PartialJoint(ctx, t.store.Current(), t.xchg.Block(), t.joint); err != nil {
			return err
		}
		return t.xchg.ReduceJoint(ctx, iter, t.joint)
	})
	if err != nil {
		return d, err
	}

	if coordinator {
		var ll float64
		err := t.timed(PhaseLikelihood, func() error {
			var err error
			ll, err = t.engine.LogLikelihood(ctx, t.co, t.joint)
			return err
		})
		if err != nil {
			return d, err
		}

		prev := t.monitor.Current()
		d = t.monitor.Observe(ll)
		result.Trace = append(result.Trace, ll)
		t.logger.LogIteration(ctx, iter, prev, ll, t.monitor.Change())
		if t.logger.Enabled(ctx, slog.LevelDebug) {
			positive, mass := t.joint.Check()
			t.logger.LogJointCheck(ctx, iter, positive, mass)
		}
		t.metrics.RecordIteration(iter, ll, time.Since(roundStart))

		if err := t.notifyIteration(ctx, iter, ll, d.State); err != nil {
			return d, err
		}
		if iter == 0 && t.snapshotsEnabled() {
			if err := t.snapshot(ctx, 0); err != nil {
				return d, err
			}
		}
	}

	err = t.timed(PhaseDistribute, func() error {
		var err error
		if d, err = t.xchg.BroadcastDecision(ctx, iter, d); err != nil {
			return err
		}
		return t.xchg.BroadcastJoint(ctx, iter, t.joint)
	})
	return d, err
}

// step runs the E/M step of iteration iter and redistributes the normalised
// tables.
func (t *Trainer) step(ctx context.Context, iter uint32) error {
	_ = t.timed(PhaseSwap, func() error {
		t.store.Swap()
		return nil
	})

	err := t.timed(PhaseStep, func() error {
		return t.engine.ApplyStep(ctx, t.store.Previous(), t.store.Current(), t.co, t.joint, t.xchg.Block())
	})
	if err != nil {
		return err
	}

	if err := t.timed(PhaseGather, func() error { return t.xchg.Gather(ctx, iter, t.store.Current()) }); err != nil {
		return err
	}

	if t.xchg.IsCoordinator() {
		err := t.timed(PhaseNormalize, func() error {
			t.faults.Add(t.store.NormalizeCurrent())
			return t.faults.Err()
		})
		if err != nil {
			return err
		}
		if t.snapshotsEnabled() && (iter%t.cfg.SnapshotInterval == 0 || iter == 1) {
			if err := t.snapshot(ctx, iter); err != nil {
				return err
			}
		}
	}

	return t.timed(PhaseDistribute, func() error { return t.xchg.Scatter(ctx, iter, t.store.Current()) })
}

func (t *Trainer) snapshotsEnabled() bool {
	return t.cfg.SnapshotInterval > 0 && !t.cfg.SuppressOutput && t.opts.output != nil
}

// snapshot writes the joint matrix that is current on the coordinator. After
// an E/M step that is the joint of the previous generation.
func (t *Trainer) snapshot(ctx context.Context, iter uint32) error {
	start := time.Now()
	err := t.opts.output.WriteSnapshot(ctx, iter, t.joint)
	d := time.Since(start)
	t.timings.Add(PhaseOutput, d)
	t.metrics.RecordSnapshot(d, err)
	t.logger.LogSnapshot(ctx, iter, err)
	if err != nil {
		return fmt.Errorf("snapshot %d: %w", iter, err)
	}
	return nil
}

func (t *Trainer) notifyStart(ctx context.Context) error {
	info := RunInfo{
		RunID:    t.opts.runID,
		Config:   t.cfg,
		Seed:     t.seed,
		Workers:  t.xchg.Workers(),
		TermsA:   t.co.NumTermsA(),
		TermsB:   t.co.NumTermsB(),
		NonZeros: t.co.NonZeros(),
	}
	var errs []error
	for _, obs := range t.opts.observers {
		errs = append(errs, obs.OnStart(ctx, info))
	}
	return errors.Join(errs...)
}

func (t *Trainer) notifyIteration(ctx context.Context, iter uint32, ll float64, state State) error {
	info := IterationInfo{
		RunID:         t.opts.runID,
		Iteration:     iter,
		LogLikelihood: ll,
		Change:        t.monitor.Change(),
		State:         state,
	}
	var errs []error
	for _, obs := range t.opts.observers {
		errs = append(errs, obs.OnIteration(ctx, info))
	}
	return errors.Join(errs...)
}

func (t *Trainer) notifyFinish(ctx context.Context, r *Result) error {
	var errs []error
	for _, obs := range t.opts.observers {
		errs = append(errs, obs.OnFinish(ctx, r))
	}
	return errors.Join(errs...)
}
