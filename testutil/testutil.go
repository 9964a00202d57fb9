package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/plsago/cooccur"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float64 in a loop).
func (r *RNG) FillUniform(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float64()
	}
}

// Distribution returns n strictly positive probabilities summing to 1.
func (r *RNG) Distribution(n int) []float64 {
	p := make([]float64, n)
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0.0
	for i := range p {
		p[i] = 0.05 + r.rand.Float64()
		sum += p[i]
	}
	for i := range p {
		p[i] /= sum
	}
	return p
}

// Mixture is a PLSA model in probability space.
type Mixture struct {
	Prior []float64   // p(z)
	W1    [][]float64 // p(w1 | z), [clusters][termsA]
	W2    [][]float64 // p(w2 | z), [clusters][termsB]
}

// RandomMixture draws every distribution of the model from rng.
func RandomMixture(rng *RNG, clusters, termsA, termsB int) *Mixture {
	m := &Mixture{Prior: rng.Distribution(clusters)}
	for k := 0; k < clusters; k++ {
		m.W1 = append(m.W1, rng.Distribution(termsA))
		m.W2 = append(m.W2, rng.Distribution(termsB))
	}
	return m
}

// BlockMixture returns a model whose clusters prefer disjoint, contiguous
// ranges of both vocabularies. Each cluster puts 1-noise of its mass on its
// own range and spreads noise over the rest. Priors are uniform.
func BlockMixture(clusters, termsA, termsB int, noise float64) *Mixture {
	m := &Mixture{Prior: make([]float64, clusters)}
	for k := 0; k < clusters; k++ {
		m.Prior[k] = 1 / float64(clusters)
		m.W1 = append(m.W1, blockRow(k, clusters, termsA, noise))
		m.W2 = append(m.W2, blockRow(k, clusters, termsB, noise))
	}
	return m
}

func blockRow(k, clusters, n int, noise float64) []float64 {
	lo, hi := k*n/clusters, (k+1)*n/clusters
	own := hi - lo
	row := make([]float64, n)
	for i := range row {
		if i >= lo && i < hi {
			row[i] = (1 - noise) / float64(own)
		} else {
			row[i] = noise / float64(n-own)
		}
	}
	return row
}

// Joint returns p(w1=i, w2=j).
func (m *Mixture) Joint(i, j int) float64 {
	p := 0.0
	for k := range m.Prior {
		p += m.Prior[k] * m.W1[k][i] * m.W2[k][j]
	}
	return p
}

// Matrix returns the expected counts of total observations. Every cell is
// positive, so the matrix is dense.
func (m *Mixture) Matrix(total float64) *cooccur.Matrix {
	termsA, termsB := len(m.W1[0]), len(m.W2[0])
	b := cooccur.NewBuilderWithDims(uint32(termsA), uint32(termsB))
	for i := 0; i < termsA; i++ {
		for j := 0; j < termsB; j++ {
			if err := b.Add(uint32(i), uint32(j), total*m.Joint(i, j)); err != nil {
				panic(err)
			}
		}
	}
	co, err := b.Build()
	if err != nil {
		panic(err)
	}
	return co
}
