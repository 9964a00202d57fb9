package store

import "fmt"

// Table is a dense row-major matrix of log-probabilities.
type Table struct {
	rows, cols int
	data       []float64
}

// NewTable allocates a rows × cols table.
func NewTable(rows, cols int) *Table {
	return &Table{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// Rows returns the number of rows.
func (t *Table) Rows() int { return t.rows }

// Cols returns the number of columns.
func (t *Table) Cols() int { return t.cols }

// At returns the value at (r, c).
func (t *Table) At(r, c int) float64 { return t.data[r*t.cols+c] }

// Set stores v at (r, c).
func (t *Table) Set(r, c int, v float64) { t.data[r*t.cols+c] = v }

// Row returns row r as a slice aliasing the table storage.
func (t *Table) Row(r int) []float64 { return t.data[r*t.cols : (r+1)*t.cols] }

// Data returns the backing slice.
func (t *Table) Data() []float64 { return t.data }

// Fill sets every cell to v.
func (t *Table) Fill(v float64) {
	for i := range t.data {
		t.data[i] = v
	}
}

// CopyFrom copies the contents of src, which must have the same shape.
func (t *Table) CopyFrom(src *Table) error {
	if src.rows != t.rows || src.cols != t.cols {
		return fmt.Errorf("store: shape mismatch %dx%d vs %dx%d", t.rows, t.cols, src.rows, src.cols)
	}
	copy(t.data, src.data)
	return nil
}
