package plsago

import (
	"context"

	"github.com/hupe1980/plsago/internal/converge"
	"github.com/hupe1980/plsago/model"
)

// State is the terminal state of a run.
type State = converge.State

const (
	StateInit      = converge.Init
	StateRunning   = converge.Running
	StateConverged = converge.Converged
	StateMaxIter   = converge.MaxIter
	StateDiverged  = converge.Diverged
)

// Result describes a finished run. Likelihood fields and Trace are only
// filled on the coordinator.
type Result struct {
	RunID      string
	Rank       int
	Workers    int
	Clusters   uint32
	Seed       uint64
	State      State
	Iterations uint32

	InitialLogLikelihood float64
	FinalLogLikelihood   float64
	// Trace holds the log-likelihood of every iteration, starting with the
	// baseline.
	Trace []float64

	// Joint is the final joint probability matrix (log space).
	Joint *model.Joint

	NumericFaults    uint64
	MessagesSent     uint64
	MessagesReceived uint64
	Timings          Timings
}

// Output persists joint matrices.
type Output interface {
	// WriteSnapshot writes the joint matrix of an intermediate iteration.
	WriteSnapshot(ctx context.Context, iteration uint32, joint *model.Joint) error
	// WriteFinal writes the joint matrix of the finished run.
	WriteFinal(ctx context.Context, joint *model.Joint) error
}

// RunInfo describes a run that is about to start.
type RunInfo struct {
	RunID    string
	Config   Config
	Seed     uint64
	Workers  int
	TermsA   uint32
	TermsB   uint32
	NonZeros int
}

// IterationInfo describes one evaluated iteration.
type IterationInfo struct {
	RunID         string
	Iteration     uint32
	LogLikelihood float64
	Change        float64
	State         State
}

// Observer follows the progress of the coordinator. An error returned by an
// observer aborts the run.
type Observer interface {
	OnStart(ctx context.Context, info RunInfo) error
	OnIteration(ctx context.Context, info IterationInfo) error
	OnFinish(ctx context.Context, result *Result) error
}
