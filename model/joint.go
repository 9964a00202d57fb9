package model

import (
	"fmt"
	"math"

	"github.com/hupe1980/plsago/internal/logspace"
)

// Joint is a dense [termsA × termsB] matrix of log p(w1, w2).
type Joint struct {
	rows, cols int
	data       []float64
}

// NewJoint allocates a joint matrix with every cell set to logspace.Unset.
func NewJoint(rows, cols int) *Joint {
	j := &Joint{rows: rows, cols: cols, data: make([]float64, rows*cols)}
	j.Reset()
	return j
}

// Rows returns the term-A vocabulary size.
func (j *Joint) Rows() int { return j.rows }

// Cols returns the term-B vocabulary size.
func (j *Joint) Cols() int { return j.cols }

// At returns log p(w1=i, w2=k).
func (j *Joint) At(i, k int) float64 { return j.data[i*j.cols+k] }

// Set stores log p(w1=i, w2=k).
func (j *Joint) Set(i, k int, v float64) { j.data[i*j.cols+k] = v }

// Row returns row i aliasing the matrix storage.
func (j *Joint) Row(i int) []float64 { return j.data[i*j.cols : (i+1)*j.cols] }

// Data returns the backing slice in row-major order.
func (j *Joint) Data() []float64 { return j.data }

// Reset sets every cell to logspace.Unset.
func (j *Joint) Reset() {
	for i := range j.data {
		j.data[i] = logspace.Unset
	}
}

// Merge log-adds other into j cell by cell.
func (j *Joint) Merge(other []float64) error {
	if len(other) != len(j.data) {
		return fmt.Errorf("model: joint size mismatch: %d vs %d", len(other), len(j.data))
	}
	for i, v := range other {
		j.data[i] = logspace.Add(j.data[i], v)
	}
	return nil
}

// Mass returns Σ exp(log p) over all cells.
func (j *Joint) Mass() float64 {
	total := 0.0
	for _, v := range j.data {
		total += math.Exp(v)
	}
	return total
}

// Check reports the number of cells with log p > 0, which no probability may
// have, together with the total mass.
func (j *Joint) Check() (positive int, mass float64) {
	for _, v := range j.data {
		if v > 0 {
			positive++
		}
		mass += math.Exp(v)
	}
	return positive, mass
}
