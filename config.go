package plsago

import (
	"runtime"

	"github.com/hupe1980/plsago/internal/converge"
	"github.com/hupe1980/plsago/internal/exchange"
	"github.com/hupe1980/plsago/internal/logspace"
)

const (
	// LnLimit is the log-space accuracy threshold of the log-sum-exp.
	LnLimit = logspace.LnLimit

	// MinProb is the smallest probability a table cell holds.
	MinProb = logspace.MinProb

	// MaxClusters is the exclusive upper bound on the cluster count.
	MaxClusters = exchange.MaxClusters

	// MaxIterations is the largest supported iteration ceiling.
	MaxIterations = exchange.MaxTagIterations

	// DefaultConvergenceDelta is the default relative likelihood change, in
	// percent, below which the run has converged.
	DefaultConvergenceDelta = converge.DefaultDelta

	// RoundingFactor is the precision of rounded binary output.
	RoundingFactor = 100000000
)

// Config holds the algorithmic settings of a run.
type Config struct {
	// NumClusters is the number of latent clusters.
	NumClusters uint32 `yaml:"clusters" json:"clusters"`

	// MaxIterations bounds the number of E/M steps.
	MaxIterations uint32 `yaml:"max_iterations" json:"max_iterations"`

	// Seed initialises the random tables. 0 derives a seed from the clock.
	Seed uint64 `yaml:"seed" json:"seed"`

	// SnapshotInterval writes the joint matrix every n iterations (and after
	// the first). 0 disables snapshots.
	SnapshotInterval uint32 `yaml:"snapshot" json:"snapshot"`

	// Rounding rounds binary output to RoundingFactor.
	Rounding bool `yaml:"rounding" json:"rounding"`

	// SuppressOutput disables the final output and all snapshots.
	SuppressOutput bool `yaml:"no_output" json:"no_output"`

	// Verbose reports settings and timings.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// TextOutput writes text instead of binary output.
	TextOutput bool `yaml:"text" json:"text"`

	// Threads is the number of goroutines per worker. 0 uses every CPU.
	Threads int `yaml:"threads" json:"threads"`

	// ConvergenceDelta overrides DefaultConvergenceDelta when positive.
	ConvergenceDelta float64 `yaml:"delta" json:"delta"`
}

// DefaultConfig returns a Config with the command-line defaults.
func DefaultConfig() Config {
	return Config{
		NumClusters:   10,
		MaxIterations: 100,
		Threads:       1,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.NumClusters == 0 {
		return NewConfigError("clusters", "must be positive", nil)
	}
	if c.NumClusters >= MaxClusters {
		return NewConfigError("clusters", "must be below the tag capacity", ErrTooManyClusters)
	}
	if c.MaxIterations == 0 {
		return NewConfigError("max_iterations", "must be positive", nil)
	}
	if err := exchange.CheckCapacity(c.NumClusters, c.MaxIterations); err != nil {
		return NewConfigError("max_iterations", "exceeds the tag capacity", err)
	}
	if c.Threads < 0 {
		return NewConfigError("threads", "must not be negative", nil)
	}
	if c.ConvergenceDelta < 0 {
		return NewConfigError("delta", "must not be negative", nil)
	}
	return nil
}

// ForWorkers returns c with NumClusters raised to workers when there are more
// workers than clusters, and whether it was raised.
func (c Config) ForWorkers(workers int) (Config, bool) {
	if uint32(workers) > c.NumClusters {
		c.NumClusters = uint32(workers)
		return c, true
	}
	return c, false
}

func (c Config) convergenceDelta() float64 {
	if c.ConvergenceDelta > 0 {
		return c.ConvergenceDelta
	}
	return DefaultConvergenceDelta
}

func (c Config) threads() int {
	if c.Threads <= 0 || c.Threads > runtime.NumCPU() {
		return runtime.NumCPU()
	}
	return c.Threads
}
