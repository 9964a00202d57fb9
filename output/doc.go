// Package output persists joint probability matrices and run summaries to a
// blob store.
//
// Joint matrices are written in probability space, either as text (one
// "row col probability" line per cell after a "% rows cols" header, the same
// layout the co-occurrence text reader accepts) or as a dense little-endian
// binary file. Binary output can be rounded to 1e-8.
//
// Writer implements plsago.Output:
//
//	w := output.NewWriter(store, "model/run1", output.WithRounding(true))
//	res, err := plsago.RunLocal(ctx, cfg, co, 4, plsago.WithOutput(w))
//
// Blob names are derived from the base name: <base>.bin (or .txt) for the
// final matrix, <base>.<iteration>.bin for snapshots and <base>.summary.json
// for the summary.
package output
