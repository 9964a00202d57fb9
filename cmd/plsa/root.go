package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/plsago"
	"github.com/hupe1980/plsago/codec"
	"github.com/hupe1980/plsago/cooccur"
	"github.com/hupe1980/plsago/history"
	"github.com/hupe1980/plsago/internal/frame"
	"github.com/hupe1980/plsago/output"
	"github.com/hupe1980/plsago/promcollector"
	"github.com/hupe1980/plsago/transport/tcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string) int {
	return runWithOutput(ctx, args, os.Stderr)
}

func runWithOutput(ctx context.Context, args []string, stderr io.Writer) int {
	s := DefaultSettings()
	cmd := newRootCmd(&s, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, plsago.ErrInvalidConfig):
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		_ = cmd.Usage()
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func newRootCmd(s *Settings, stderr io.Writer) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "plsa",
		Short: "Probabilistic latent semantic analysis over paired vocabularies",
		Long: `plsa fits p(w1,w2) = sum_z p(z) p(w1|z) p(w2|z) to a co-occurrence matrix
with expectation maximisation in log space. Clusters are partitioned across
workers, which run in-process (--workers) or as separate processes connected
over TCP (--rank, --peers). Worker 0 coordinates and writes the output.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				return nil
			}
			return applyConfigFile(cmd.Flags(), configPath, s)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.Validate(); err != nil {
				return err
			}
			return train(cmd.Context(), s, stderr)
		},
	}
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return plsago.NewConfigError("flags", err.Error(), err)
	})

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML settings file; flags override its values")
	f.StringVar(&s.Base, "base", s.Base, "base name of output files")
	f.StringVar(&s.Cooccur, "cooccur", s.Cooccur, "co-occurrence file")
	f.Uint32Var(&s.NumClusters, "clusters", s.NumClusters, "number of clusters")
	f.Uint64Var(&s.Seed, "seed", s.Seed, "random seed (0: current time)")
	f.Uint32Var(&s.MaxIterations, "maxiter", s.MaxIterations, "maximum iterations")
	f.BoolVar(&s.TextOutput, "text", s.TextOutput, "text mode (input and output are text, not binary)")
	f.Uint32Var(&s.SnapshotInterval, "snapshot", s.SnapshotInterval, "write p(w1,w2) every n iterations (0: never)")
	f.IntVar(&s.Threads, "threads", s.Threads, "goroutines per worker (0: all CPUs)")
	f.IntVar(&s.Threads, "openmp", s.Threads, "goroutines per worker")
	_ = f.MarkDeprecated("openmp", "use --threads")
	f.BoolVar(&s.Verbose, "verbose", s.Verbose, "report settings and timings")
	f.BoolVar(&s.Debug, "debug", s.Debug, "debug logging")
	f.BoolVar(&s.Rounding, "rounding", s.Rounding, fmt.Sprintf("round binary output using %d as the multiplication factor", plsago.RoundingFactor))
	f.BoolVar(&s.SuppressOutput, "nooutput", s.SuppressOutput, "do not write p(w1,w2)")
	f.Float64Var(&s.ConvergenceDelta, "delta", s.ConvergenceDelta, "convergence threshold in percent (0: default)")
	f.StringVar(&s.LogFormat, "log-format", s.LogFormat, "log format: text or json")

	f.IntVar(&s.Workers, "workers", s.Workers, "in-process workers")
	f.IntVar(&s.Rank, "rank", s.Rank, "rank of this process in --peers")
	f.StringSliceVar(&s.Peers, "peers", s.Peers, "listen addresses of all workers, by rank")
	f.StringVar(&s.Compression, "compression", s.Compression, "TCP frame compression: none, lz4 or zstd")
	f.StringVar(&s.RunID, "run-id", s.RunID, "run identifier shared by all processes (default: generated)")

	f.StringVar(&s.Store, "store", s.Store, "blob store: local, s3 or minio")
	f.StringVar(&s.Bucket, "bucket", s.Bucket, "bucket of the s3 or minio store")
	f.StringVar(&s.Prefix, "prefix", s.Prefix, "key prefix, or root directory of the local store")
	f.StringVar(&s.Endpoint, "endpoint", s.Endpoint, "custom s3 endpoint, or the minio host:port")
	f.StringVar(&s.Region, "region", s.Region, "bucket region")
	f.BoolVar(&s.Insecure, "insecure", s.Insecure, "plain HTTP to minio")

	f.StringVar(&s.History, "history", s.History, "SQLite database recording runs and iterations")
	f.StringVar(&s.MetricsAddr, "metrics-addr", s.MetricsAddr, "serve Prometheus metrics on this address")
	f.StringVar(&s.FaultPolicy, "fault-policy", s.FaultPolicy, "numeric faults: count or abort")
	f.Int64Var(&s.MemoryLimit, "memory-limit", s.MemoryLimit, "table memory limit in bytes (0: unlimited)")
	f.Int64Var(&s.IOLimit, "io-limit", s.IOLimit, "output throughput limit in bytes/s (0: unlimited)")
	f.StringVar(&s.Codec, "codec", s.Codec, "summary codec: json or go-json")

	return cmd
}

// applyConfigFile loads the YAML file into s and re-applies the flags given on
// the command line, so that they take precedence.
func applyConfigFile(flags *pflag.FlagSet, path string, s *Settings) error {
	type setFlag struct {
		name  string
		value string
		slice []string
	}
	var given []setFlag
	flags.Visit(func(f *pflag.Flag) {
		sf := setFlag{name: f.Name, value: f.Value.String()}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sf.slice = sv.GetSlice()
		}
		given = append(given, sf)
	})

	if err := LoadSettingsFile(path, s); err != nil {
		return err
	}

	for _, sf := range given {
		f := flags.Lookup(sf.name)
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			if err := sv.Replace(sf.slice); err != nil {
				return err
			}
			continue
		}
		if err := f.Value.Set(sf.value); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(s *Settings, w io.Writer) *plsago.Logger {
	level := slog.LevelInfo
	if s.Verbose || s.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(s.LogFormat, "json") {
		return plsago.NewLogger(slog.NewJSONHandler(w, opts))
	}
	return plsago.NewLogger(slog.NewTextHandler(w, opts))
}

func inputFormat(s *Settings) cooccur.Format {
	if s.TextOutput {
		return cooccur.FormatText
	}
	return cooccur.FormatBinary
}

func train(ctx context.Context, s *Settings, stderr io.Writer) error {
	logger := newLogger(s, stderr)

	store, err := openStore(ctx, s)
	if err != nil {
		return err
	}

	readStart := time.Now()
	co, err := cooccur.Load(ctx, store, s.Cooccur, inputFormat(s))
	if err != nil {
		return err
	}
	readDuration := time.Since(readStart)

	coordinator := s.Rank == 0
	opts := []plsago.Option{
		plsago.WithLogger(logger),
		plsago.WithFaultPolicy(s.FaultPolicy),
		plsago.WithMemoryLimit(s.MemoryLimit),
		plsago.WithReadDuration(readDuration),
	}
	if s.RunID != "" {
		opts = append(opts, plsago.WithRunID(s.RunID))
	}

	var writer *output.Writer
	if !s.SuppressOutput {
		c, _ := codec.ByName(s.Codec)
		writer = output.NewWriter(store, s.Base,
			output.WithText(s.TextOutput),
			output.WithRounding(s.Rounding),
			output.WithIOLimit(s.IOLimit),
			output.WithCodec(c),
		)
		opts = append(opts, plsago.WithOutput(writer))
	}

	if coordinator && s.History != "" {
		h, err := history.Open(ctx, s.History)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()
		opts = append(opts, plsago.WithObserver(h))
	}

	if s.MetricsAddr != "" {
		stop, err := serveMetrics(s.MetricsAddr, logger, &opts)
		if err != nil {
			return err
		}
		defer stop()
	}

	var res *plsago.Result
	if len(s.Peers) > 0 {
		res, err = trainTCP(ctx, s, co, logger, opts)
	} else {
		res, err = plsago.RunLocal(ctx, s.Config, co, s.Workers, opts...)
	}

	if errors.Is(err, plsago.ErrDiverged) {
		logger.Error("log-likelihood decreased, stopping", "error", err)
		err = nil
	}
	if err != nil {
		return err
	}

	if coordinator && writer != nil {
		if err := writer.WriteSummary(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

func trainTCP(ctx context.Context, s *Settings, co *cooccur.Matrix, logger *plsago.Logger, opts []plsago.Option) (*plsago.Result, error) {
	compression, err := frame.ParseCompression(s.Compression)
	if err != nil {
		return nil, err
	}
	node, err := tcp.Connect(ctx, tcp.Config{
		Rank:        s.Rank,
		Peers:       s.Peers,
		Compression: compression,
		Logger:      logger.Logger,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = node.Close() }()

	t, err := plsago.New(s.Config, co, node, opts...)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return t.Run(ctx)
}

// serveMetrics starts a Prometheus endpoint and adds its collector to opts.
func serveMetrics(addr string, logger *plsago.Logger, opts *[]plsago.Option) (func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	*opts = append(*opts, plsago.WithMetricsCollector(promcollector.New(reg)))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
