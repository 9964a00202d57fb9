package em

import (
	"context"
	"math"

	"github.com/hupe1980/plsago/cooccur"
	"github.com/hupe1980/plsago/internal/fpe"
	"github.com/hupe1980/plsago/internal/logspace"
	"github.com/hupe1980/plsago/internal/parallel"
	"github.com/hupe1980/plsago/internal/partition"
	"github.com/hupe1980/plsago/internal/store"
	"github.com/hupe1980/plsago/model"
)

// Engine runs the EM passes on an Executor.
type Engine struct {
	exec   parallel.Executor
	faults *fpe.Counter
}

// New returns an Engine. A nil executor runs serially; a nil counter counts
// faults without aborting.
func New(exec parallel.Executor, faults *fpe.Counter) *Engine {
	if exec == nil {
		exec = parallel.Serial{}
	}
	if faults == nil {
		faults = fpe.NewCounter(fpe.Count)
	}
	return &Engine{exec: exec, faults: faults}
}

// PartialJoint writes into joint, for every (i, j), the log-sum over k in block
// of gen.ClusterProduct(k, i, j). Rows are processed in parallel.
func (e *Engine) PartialJoint(ctx context.Context, gen *store.Generation, block partition.Block, joint *model.Joint) error {
	if block.Size() == 0 {
		joint.Reset()
		return nil
	}
	start, end := int(block.Start), int(block.End)
	return e.exec.For(ctx, joint.Rows(), func(i int) error {
		row := joint.Row(i)
		for j := range row {
			acc := gen.ClusterProduct(start, i, j)
			for k := start + 1; k < end; k++ {
				acc = logspace.Add(acc, gen.ClusterProduct(k, i, j))
			}
			row[j] = acc
		}
		return nil
	})
}

// ApplyStep runs one E/M pass for the clusters of block. It reads prev and the
// global joint matrix and overwrites the block's rows of curr with unnormalised
// expected counts. Accumulators that receive no contribution are set to
// logspace.Floor.
func (e *Engine) ApplyStep(ctx context.Context, prev, curr *store.Generation, co *cooccur.Matrix, joint *model.Joint, block partition.Block) error {
	numA := int(co.NumTermsA())
	numB := int(co.NumTermsB())
	start := int(block.Start)

	err := e.exec.For(ctx, int(block.Size()), func(n int) error {
		k := start + n
		var prior logspace.Accumulator
		w1 := make([]logspace.Accumulator, numA)
		w2 := make([]logspace.Accumulator, numB)

		pk := prev.PriorOf(k)
		prevW1 := prev.W1.Row(k)
		prevW2 := prev.W2.Row(k)

		for i := 0; i < numA; i++ {
			jointRow := joint.Row(i)
			for _, entry := range co.Row(uint32(i)) {
				j := int(entry.Column)
				t := entry.LogCount + prevW1[i] + prevW2[j] + pk - jointRow[j]
				prior.Add(t)
				w1[i].Add(t)
				w2[j].Add(t)
			}
		}

		e.writeRow(curr.W1.Row(k), w1)
		e.writeRow(curr.W2.Row(k), w2)
		curr.SetPrior(k, e.value(prior))
		return nil
	})
	if err != nil {
		return err
	}
	return e.faults.Err()
}

func (e *Engine) writeRow(dst []float64, acc []logspace.Accumulator) {
	for i := range acc {
		dst[i] = e.value(acc[i])
	}
}

func (e *Engine) value(a logspace.Accumulator) float64 {
	if !a.Set {
		return logspace.Floor
	}
	e.faults.Observe(a.Value)
	return a.Value
}

// LogLikelihood returns Σ joint(i,j) · exp(logCount) over the stored cells.
// Per-row partial sums are added in row order, so the result does not depend
// on the number of threads.
func (e *Engine) LogLikelihood(ctx context.Context, co *cooccur.Matrix, joint *model.Joint) (float64, error) {
	rows := int(co.NumTermsA())
	partial := make([]float64, rows)
	err := e.exec.For(ctx, rows, func(i int) error {
		jointRow := joint.Row(i)
		sum := 0.0
		for _, entry := range co.Row(uint32(i)) {
			sum += jointRow[entry.Column] * math.Exp(entry.LogCount)
		}
		partial[i] = sum
		return nil
	})
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, v := range partial {
		total += v
	}
	return total, nil
}

// Faults returns the engine's fault counter.
func (e *Engine) Faults() *fpe.Counter { return e.faults }
