// Package cooccur holds the sparse co-occurrence matrix consumed by the EM engine.
//
// Row i of the matrix lists, for term-A index i, the term-B columns it was
// observed with and the natural logarithm of the observed count. Columns are
// strictly increasing within a row. A Matrix is immutable once built; the EM
// engine only reads it.
//
// # Input formats
//
// Text: one "row column count" triple per line, whitespace separated. Blank lines
// and lines starting with '#' are ignored. A line "% rows columns" fixes the
// matrix dimensions; otherwise they are derived from the largest indices seen.
//
// Binary (little-endian):
//
//	[Magic: 8 bytes "PLSACO01"] [Rows: u32] [Columns: u32] [Count: u64]
//	Count × [Row: u32] [Column: u32] [Count: f64]
//
// Counts are raw (positive) in both formats and stored as logarithms.
package cooccur
