package store

import (
	"math"
	"math/rand/v2"

	"github.com/hupe1980/plsago/internal/logspace"
	"gonum.org/v1/gonum/floats"
)

// Generation is one complete set of EM parameters.
type Generation struct {
	W1    *Table
	W2    *Table
	Prior *Table
}

func newGeneration(clusters, termsA, termsB int) *Generation {
	return &Generation{
		W1:    NewTable(clusters, termsA),
		W2:    NewTable(clusters, termsB),
		Prior: NewTable(1, clusters),
	}
}

// NumClusters returns the number of clusters.
func (g *Generation) NumClusters() int { return g.W1.rows }

// PriorOf returns log p(z=k).
func (g *Generation) PriorOf(k int) float64 { return g.Prior.data[k] }

// SetPrior stores log p(z=k).
func (g *Generation) SetPrior(k int, v float64) { g.Prior.data[k] = v }

// ClusterProduct returns log p(w1=i|z=k) + log p(w2=j|z=k) + log p(z=k).
func (g *Generation) ClusterProduct(k, i, j int) float64 {
	return g.W1.At(k, i) + g.W2.At(k, j) + g.Prior.data[k]
}

// Store owns the current and previous generations.
type Store struct {
	slots   [2]*Generation
	current int

	numClusters int
	numTermsA   int
	numTermsB   int
}

// New allocates both generations.
func New(clusters, termsA, termsB int) *Store {
	return &Store{
		slots:       [2]*Generation{newGeneration(clusters, termsA, termsB), newGeneration(clusters, termsA, termsB)},
		numClusters: clusters,
		numTermsA:   termsA,
		numTermsB:   termsB,
	}
}

// Bytes returns the memory held by both generations.
func Bytes(clusters, termsA, termsB int) int64 {
	cells := int64(clusters) * (int64(termsA) + int64(termsB) + 1)
	return 2 * 8 * cells
}

// NumClusters returns the number of clusters.
func (s *Store) NumClusters() int { return s.numClusters }

// NumTermsA returns the term-A vocabulary size.
func (s *Store) NumTermsA() int { return s.numTermsA }

// NumTermsB returns the term-B vocabulary size.
func (s *Store) NumTermsB() int { return s.numTermsB }

// Current returns the generation being written by the running step.
func (s *Store) Current() *Generation { return s.slots[s.current] }

// Previous returns the generation read by the running step.
func (s *Store) Previous() *Generation { return s.slots[1-s.current] }

// Swap exchanges current and previous.
func (s *Store) Swap() { s.current = 1 - s.current }

// InitializeRandom fills the current generation with random normalised
// distributions: the prior first, then every W1 row, then every W2 row.
// Draws are uniform in [MinProb, 1).
func (s *Store) InitializeRandom(rng *rand.Rand) {
	g := s.Current()
	randomDistribution(rng, g.Prior.data)
	for k := 0; k < s.numClusters; k++ {
		randomDistribution(rng, g.W1.Row(k))
	}
	for k := 0; k < s.numClusters; k++ {
		randomDistribution(rng, g.W2.Row(k))
	}
}

func randomDistribution(rng *rand.Rand, dst []float64) {
	for i := range dst {
		dst[i] = math.Max(rng.Float64(), logspace.MinProb)
	}
	floats.Scale(1/floats.Sum(dst), dst)
	for i := range dst {
		dst[i] = math.Log(dst[i])
	}
}

// NormalizeCurrent turns the accumulated expected counts of the current
// generation into log-probabilities. Every W1 and W2 entry of cluster k has the
// unnormalised prior of k subtracted; the prior is then shifted so that it
// log-sum-exps to zero. It returns the number of non-finite values produced.
func (s *Store) NormalizeCurrent() int {
	g := s.Current()
	faults := 0
	for k := 0; k < s.numClusters; k++ {
		p := g.Prior.data[k]
		faults += subtract(g.W1.Row(k), p)
		faults += subtract(g.W2.Row(k), p)
	}
	faults += subtract(g.Prior.data, logspace.Sum(g.Prior.data))
	return faults
}

func subtract(dst []float64, v float64) int {
	faults := 0
	for i := range dst {
		dst[i] -= v
		if math.IsNaN(dst[i]) || math.IsInf(dst[i], 0) {
			faults++
		}
	}
	return faults
}
