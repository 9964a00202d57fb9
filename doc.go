// Package plsago fits a probabilistic latent semantic model over two paired
// vocabularies with distributed Expectation-Maximization in log space.
//
// The input is a sparse co-occurrence matrix n(w1, w2) (package cooccur). The
// model is
//
//	p(w1, w2) = Σ_z p(z) p(w1|z) p(w2|z)
//
// and the output is the fitted joint probability matrix p(w1, w2).
//
// # Quick Start
//
// Single worker:
//
//	co, _ := cooccur.ReadText(f)
//	cfg := plsago.DefaultConfig()
//	cfg.NumClusters = 8
//	t, _ := plsago.New(cfg, co, transport.Local{})
//	res, err := t.Run(ctx)
//
// Several goroutine-workers in one process:
//
//	res, err := plsago.RunLocal(ctx, cfg, co, 4)
//
// Several processes, one Trainer each:
//
//	node, _ := tcp.Connect(ctx, tcp.Config{Rank: rank, Peers: peers})
//	t, _ := plsago.New(cfg, co, node)
//	res, err := t.Run(ctx)
//
// # Distribution
//
// The cluster space is split into contiguous blocks, one per worker. Worker 0
// coordinates: it draws the initial tables, scatters every block to its owner,
// reduces the partial joint matrices of all workers, evaluates the likelihood,
// decides when to stop and gathers the updated tables for normalisation.
// Workers exchange messages only; no memory is shared between them.
//
// # Termination
//
// A run ends CONVERGED when the relative likelihood change drops below
// Config.ConvergenceDelta percent, MAX_ITER after Config.MaxIterations steps,
// or DIVERGED when the likelihood decreases. A diverged run returns its Result
// together with ErrDiverged.
//
// # Observability
//
// Logging uses log/slog through Logger. Metrics go to a MetricsCollector (see
// package promcollector for Prometheus). Observers (see package history) are
// notified of every iteration on the coordinator.
package plsago
