package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
)

func TestDistribution(t *testing.T) {
	rng := NewRNG(4711)
	p := rng.Distribution(16)
	assert.Len(t, p, 16)
	assert.InDelta(t, 1.0, floats.Sum(p), 1e-12)
	assert.Greater(t, floats.Min(p), 0.0)
}

func TestReset(t *testing.T) {
	rng := NewRNG(1)
	first := rng.Intn(1 << 30)
	rng.Reset()
	assert.Equal(t, first, rng.Intn(1<<30))
	assert.Equal(t, int64(1), rng.Seed())
}

func TestBlockMixture(t *testing.T) {
	m := BlockMixture(2, 4, 6, 0.1)
	for k := 0; k < 2; k++ {
		assert.InDelta(t, 1.0, floats.Sum(m.W1[k]), 1e-12)
		assert.InDelta(t, 1.0, floats.Sum(m.W2[k]), 1e-12)
	}
	assert.Greater(t, m.W1[0][0], m.W1[0][3])
	assert.Greater(t, m.W2[1][5], m.W2[1][0])

	total := 0.0
	for i := 0; i < 4; i++ {
		for j := 0; j < 6; j++ {
			total += m.Joint(i, j)
		}
	}
	assert.InDelta(t, 1.0, total, 1e-12)
}

func TestMatrix(t *testing.T) {
	co := RandomMixture(NewRNG(3), 3, 5, 4).Matrix(500)
	assert.Equal(t, uint32(5), co.NumTermsA())
	assert.Equal(t, uint32(4), co.NumTermsB())
	assert.Equal(t, 20, co.NonZeros())
	assert.InDelta(t, 500.0, co.TotalCount(), 1e-9)
}
