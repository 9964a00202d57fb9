package plsago_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/hupe1980/plsago"
	"github.com/hupe1980/plsago/blobstore"
	"github.com/hupe1980/plsago/cooccur"
	"github.com/hupe1980/plsago/output"
)

// Example_runLocal trains a two-cluster model with three in-process workers.
func Example_runLocal() {
	co, err := cooccur.ReadText(strings.NewReader("0 0 5\n0 1 3\n1 0 2\n1 1 10\n"))
	if err != nil {
		log.Fatal(err)
	}

	cfg := plsago.DefaultConfig()
	cfg.NumClusters = 2
	cfg.MaxIterations = 50
	cfg.Seed = 42

	res, err := plsago.RunLocal(context.Background(), cfg, co, 3, plsago.WithLogger(plsago.NoopLogger()))
	if err != nil {
		log.Fatal(err)
	}

	// More workers than clusters raise the cluster count.
	fmt.Println("clusters:", res.Clusters)
	fmt.Println("improved:", res.FinalLogLikelihood > res.InitialLogLikelihood)
	fmt.Printf("mass: %.6f\n", res.Joint.Mass())
	// Output:
	// clusters: 3
	// improved: true
	// mass: 1.000000
}

// Example_output writes the final joint matrix and a run summary to a blob
// store.
func Example_output() {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	if err := store.Put(ctx, "pairs.txt", []byte("% 2 2\n0 0 5\n0 1 3\n1 0 2\n1 1 10\n")); err != nil {
		log.Fatal(err)
	}

	co, err := cooccur.Load(ctx, store, "pairs.txt", cooccur.FormatText)
	if err != nil {
		log.Fatal(err)
	}

	w := output.NewWriter(store, "model", output.WithRounding(true))
	cfg := plsago.DefaultConfig()
	cfg.NumClusters = 2
	cfg.Seed = 7

	res, err := plsago.RunLocal(ctx, cfg, co, 1, plsago.WithLogger(plsago.NoopLogger()), plsago.WithOutput(w))
	if err != nil {
		log.Fatal(err)
	}
	if err := w.WriteSummary(ctx, res); err != nil {
		log.Fatal(err)
	}

	names, _ := store.List(ctx, "model")
	fmt.Println(names)
	// Output: [model.bin model.summary.json]
}
