package plsago

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/plsago/cooccur"
)

// Logger wraps slog.Logger with plsago-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(1000)})),
	}
}

// WithWorker adds the worker rank to the logger.
func (l *Logger) WithWorker(rank int) *Logger {
	return &Logger{Logger: l.Logger.With("worker", rank)}
}

// WithRunID adds the run identifier to the logger.
func (l *Logger) WithRunID(id string) *Logger {
	return &Logger{Logger: l.Logger.With("run_id", id)}
}

// LogSettings reports the effective configuration of a run.
func (l *Logger) LogSettings(ctx context.Context, cfg Config, seed uint64, rank, workers int, block string, threads int) {
	seedAttr := slog.Uint64("seed", seed)
	if cfg.Seed == 0 {
		seedAttr = slog.String("seed", "[from time]")
	}
	l.InfoContext(ctx, "settings",
		"clusters", cfg.NumClusters,
		seedAttr,
		"ln_limit", LnLimit,
		"max_iterations", cfg.MaxIterations,
		"delta", cfg.convergenceDelta(),
		"snapshot", cfg.SnapshotInterval,
		"text_output", cfg.TextOutput,
		"rounding", cfg.Rounding,
		"rounding_factor", RoundingFactor,
		"suppress_output", cfg.SuppressOutput,
		"worker", rank,
		"workers", workers,
		"block", block,
		"threads", threads,
	)
}

// LogMatrix reports the shape of the co-occurrence input.
func (l *Logger) LogMatrix(ctx context.Context, m *cooccur.Matrix) {
	l.InfoContext(ctx, "co-occurrence matrix",
		"terms_a", m.NumTermsA(),
		"terms_b", m.NumTermsB(),
		"non_zeros", m.NonZeros(),
		"empty_rows", m.EmptyRows(),
		"unused_columns", m.UnusedColumns(),
	)
}

// LogOccupancy dumps the cell occupancy of every row at debug level.
func (l *Logger) LogOccupancy(ctx context.Context, m *cooccur.Matrix) {
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	for i := uint32(0); i < m.NumTermsA(); i++ {
		l.DebugContext(ctx, "occupancy", "row", i, "cells", m.Occupancy(i))
	}
}

// LogIteration logs the likelihood of one iteration.
func (l *Logger) LogIteration(ctx context.Context, iteration uint32, prev, curr, change float64) {
	if iteration == 0 {
		l.InfoContext(ctx, "initial likelihood", "log_likelihood", curr)
		return
	}
	l.InfoContext(ctx, "iteration",
		"iteration", iteration,
		"previous", prev,
		"current", curr,
		"difference", curr-prev,
		"change_percent", change,
	)
}

// LogJointCheck reports the sanity check of a joint matrix at debug level.
func (l *Logger) LogJointCheck(ctx context.Context, iteration uint32, positive int, mass float64) {
	if positive > 0 {
		l.WarnContext(ctx, "joint has positive log-probabilities", "iteration", iteration, "cells", positive, "mass", mass)
		return
	}
	l.DebugContext(ctx, "joint check", "iteration", iteration, "mass", mass)
}

// LogTermination logs the end of the EM loop.
func (l *Logger) LogTermination(ctx context.Context, r *Result) {
	if r.State == StateDiverged {
		l.ErrorContext(ctx, "likelihood decreased, stopping",
			"iterations", r.Iterations,
			"log_likelihood", r.FinalLogLikelihood,
		)
		return
	}
	l.InfoContext(ctx, "finished",
		"state", r.State.String(),
		"iterations", r.Iterations,
		"initial", r.InitialLogLikelihood,
		"final", r.FinalLogLikelihood,
	)
}

// LogSnapshot logs a snapshot write.
func (l *Logger) LogSnapshot(ctx context.Context, iteration uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed", "iteration", iteration, "error", err)
		return
	}
	l.DebugContext(ctx, "snapshot saved", "iteration", iteration)
}

// LogNumericFaults reports the number of non-finite values seen.
func (l *Logger) LogNumericFaults(ctx context.Context, n uint64) {
	if n == 0 {
		return
	}
	l.WarnContext(ctx, "floating-point faults", "count", n)
}

// LogTimings reports every phase as a share of the total runtime.
func (l *Logger) LogTimings(ctx context.Context, t *Timings) {
	total := t.Total
	attrs := make([]any, 0, 2*numPhases+4)
	attrs = append(attrs, "total", total.Round(time.Microsecond))
	for p := Phase(0); p < numPhases; p++ {
		attrs = append(attrs, p.String(), percent(t.Get(p), total))
	}
	if t.PeakRSS > 0 {
		attrs = append(attrs, "peak_rss_bytes", t.PeakRSS)
	}
	l.InfoContext(ctx, "timings", attrs...)
}

func percent(d, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return float64(d) / float64(total) * 100
}
