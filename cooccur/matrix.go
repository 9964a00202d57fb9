package cooccur

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

var (
	// ErrDuplicateEntry is returned when a (row, column) pair is added twice.
	ErrDuplicateEntry = errors.New("cooccur: duplicate entry")

	// ErrInvalidCount is returned for non-positive or non-finite counts.
	ErrInvalidCount = errors.New("cooccur: count must be positive and finite")

	// ErrEmpty is returned when a matrix has no entries.
	ErrEmpty = errors.New("cooccur: no co-occurrences")

	// ErrOutOfRange is returned when an index exceeds the declared dimensions.
	ErrOutOfRange = errors.New("cooccur: index out of range")
)

// Entry is one stored cell of a row.
type Entry struct {
	Column   uint32
	LogCount float64
}

// Row is the sorted list of stored cells of one term-A index.
type Row []Entry

// Matrix is an immutable sparse co-occurrence matrix of log-counts.
type Matrix struct {
	rows      []Row
	numTermsA uint32
	numTermsB uint32
	nonZeros  int
	coverage  *roaring.Bitmap
}

// NumTermsA returns the number of rows (term-A vocabulary size).
func (m *Matrix) NumTermsA() uint32 { return m.numTermsA }

// NumTermsB returns the number of columns (term-B vocabulary size).
func (m *Matrix) NumTermsB() uint32 { return m.numTermsB }

// NonZeros returns the number of stored cells.
func (m *Matrix) NonZeros() int { return m.nonZeros }

// Row returns row i. The returned slice must not be modified.
func (m *Matrix) Row(i uint32) Row { return m.rows[i] }

// TotalCount returns the observed count mass, the sum of exp(logCount).
func (m *Matrix) TotalCount() float64 {
	total := 0.0
	for _, row := range m.rows {
		for _, e := range row {
			total += math.Exp(e.LogCount)
		}
	}
	return total
}

// UnusedColumns returns the number of term-B columns that never occur.
func (m *Matrix) UnusedColumns() uint32 {
	return m.numTermsB - uint32(m.coverage.GetCardinality())
}

// EmptyRows returns the number of term-A rows without any entry.
func (m *Matrix) EmptyRows() uint32 {
	var empty uint32
	for _, row := range m.rows {
		if len(row) == 0 {
			empty++
		}
	}
	return empty
}

// Occupancy renders row i as one character per column: 'O' for a stored cell,
// 'X' for an empty one.
func (m *Matrix) Occupancy(i uint32) string {
	var sb strings.Builder
	sb.Grow(int(m.numTermsB))
	next := uint32(0)
	for _, e := range m.rows[i] {
		for ; next < e.Column; next++ {
			sb.WriteByte('X')
		}
		sb.WriteByte('O')
		next = e.Column + 1
	}
	for ; next < m.numTermsB; next++ {
		sb.WriteByte('X')
	}
	return sb.String()
}

// Builder accumulates entries and produces a Matrix.
// A Builder is not safe for concurrent use.
type Builder struct {
	rows      []Row
	seen      []*roaring.Bitmap
	numTermsA uint32
	numTermsB uint32
	fixed     bool
	maxColumn int64
}

// NewBuilder returns a Builder that derives the dimensions from the entries.
func NewBuilder() *Builder {
	return &Builder{maxColumn: -1}
}

// NewBuilderWithDims returns a Builder with fixed dimensions.
func NewBuilderWithDims(numTermsA, numTermsB uint32) *Builder {
	return &Builder{numTermsA: numTermsA, numTermsB: numTermsB, fixed: true, maxColumn: -1}
}

// grow extends the row index to hold rows entries. Rows are materialised
// up to the highest one written, never up to a declared dimension.
func (b *Builder) grow(rows uint64) {
	have := uint64(len(b.rows))
	if rows <= have {
		return
	}
	n := int(rows - have)
	b.rows = append(b.rows, make([]Row, n)...)
	b.seen = append(b.seen, make([]*roaring.Bitmap, n)...)
}

// Add stores a raw count for (row, column).
func (b *Builder) Add(row, column uint32, count float64) error {
	if !(count > 0) || math.IsInf(count, 0) {
		return fmt.Errorf("%w: (%d, %d) = %v", ErrInvalidCount, row, column, count)
	}
	return b.AddLog(row, column, math.Log(count))
}

// AddLog stores an already logged count for (row, column).
func (b *Builder) AddLog(row, column uint32, logCount float64) error {
	if math.IsNaN(logCount) || math.IsInf(logCount, 0) {
		return fmt.Errorf("%w: (%d, %d) log = %v", ErrInvalidCount, row, column, logCount)
	}
	if b.fixed && (row >= b.numTermsA || column >= b.numTermsB) {
		return fmt.Errorf("%w: (%d, %d) outside %dx%d", ErrOutOfRange, row, column, b.numTermsA, b.numTermsB)
	}
	if !b.fixed && (row == math.MaxUint32 || column == math.MaxUint32) {
		return fmt.Errorf("%w: (%d, %d) exceeds the largest vocabulary", ErrOutOfRange, row, column)
	}
	b.grow(uint64(row) + 1)
	if b.seen[row] == nil {
		b.seen[row] = roaring.New()
	}
	if !b.seen[row].CheckedAdd(column) {
		return fmt.Errorf("%w: (%d, %d)", ErrDuplicateEntry, row, column)
	}
	b.rows[row] = append(b.rows[row], Entry{Column: column, LogCount: logCount})
	if int64(column) > b.maxColumn {
		b.maxColumn = int64(column)
	}
	return nil
}

// Build sorts every row and returns the finished Matrix.
// The Builder must not be used afterwards.
func (b *Builder) Build() (*Matrix, error) {
	numTermsA, numTermsB := b.numTermsA, b.numTermsB
	if !b.fixed {
		numTermsA = uint32(len(b.rows))
		numTermsB = uint32(b.maxColumn + 1)
	}

	coverage := roaring.New()
	nonZeros := 0
	for i, row := range b.rows {
		slices.SortFunc(row, func(x, y Entry) int {
			switch {
			case x.Column < y.Column:
				return -1
			case x.Column > y.Column:
				return 1
			}
			return 0
		})
		b.rows[i] = row
		nonZeros += len(row)
		if b.seen[i] != nil {
			coverage.Or(b.seen[i])
		}
	}
	if nonZeros == 0 {
		return nil, ErrEmpty
	}
	b.grow(uint64(numTermsA))

	m := &Matrix{
		rows:      b.rows,
		numTermsA: numTermsA,
		numTermsB: numTermsB,
		nonZeros:  nonZeros,
		coverage:  coverage,
	}
	b.rows, b.seen = nil, nil
	return m, nil
}
