package output

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hupe1980/plsago"
	"github.com/hupe1980/plsago/blobstore"
	"github.com/hupe1980/plsago/codec"
	"github.com/hupe1980/plsago/internal/resource"
	"github.com/hupe1980/plsago/model"
)

// Writer writes joint matrices and summaries below a base name.
type Writer struct {
	store    blobstore.Store
	base     string
	text     bool
	rounding bool
	codec    codec.Codec
	io       *resource.Controller
}

var _ plsago.Output = (*Writer)(nil)

// Option configures a Writer.
type Option func(*Writer)

// WithText writes text instead of binary matrices.
func WithText(text bool) Option {
	return func(w *Writer) { w.text = text }
}

// WithRounding rounds binary output to 1e-8.
func WithRounding(rounding bool) Option {
	return func(w *Writer) { w.rounding = rounding }
}

// WithCodec sets the summary codec. Default: codec.Default.
func WithCodec(c codec.Codec) Option {
	return func(w *Writer) { w.codec = c }
}

// WithIOLimit caps the write throughput in bytes per second. 0 is unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(w *Writer) {
		w.io = resource.NewController(resource.Config{IOLimitBytesPerSec: bytesPerSec})
	}
}

// NewWriter returns a Writer storing blobs named after base in store.
func NewWriter(store blobstore.Store, base string, optFns ...Option) *Writer {
	w := &Writer{
		store: store,
		base:  base,
		codec: codec.Default,
		io:    resource.NewController(resource.Config{}),
	}
	for _, fn := range optFns {
		fn(w)
	}
	return w
}

func (w *Writer) ext() string {
	if w.text {
		return ".txt"
	}
	return ".bin"
}

// FinalName returns the blob name of the final matrix.
func (w *Writer) FinalName() string { return w.base + w.ext() }

// SnapshotName returns the blob name of the snapshot of an iteration.
func (w *Writer) SnapshotName(iteration uint32) string {
	return fmt.Sprintf("%s.%d%s", w.base, iteration, w.ext())
}

// SummaryName returns the blob name of the run summary.
func (w *Writer) SummaryName() string { return w.base + ".summary.json" }

// WriteSnapshot implements plsago.Output.
func (w *Writer) WriteSnapshot(ctx context.Context, iteration uint32, joint *model.Joint) error {
	return w.writeJoint(ctx, w.SnapshotName(iteration), joint)
}

// WriteFinal implements plsago.Output.
func (w *Writer) WriteFinal(ctx context.Context, joint *model.Joint) error {
	return w.writeJoint(ctx, w.FinalName(), joint)
}

// WriteSummary writes the JSON summary of a finished run.
func (w *Writer) WriteSummary(ctx context.Context, r *plsago.Result) error {
	data, err := codec.Pretty(w.codec, NewSummary(r))
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return w.put(ctx, w.SummaryName(), data)
}

func (w *Writer) writeJoint(ctx context.Context, name string, joint *model.Joint) error {
	var buf bytes.Buffer
	buf.Grow(16 + 8*joint.Rows()*joint.Cols())

	var err error
	if w.text {
		err = EncodeText(&buf, joint)
	} else {
		err = EncodeBinary(&buf, joint, w.rounding)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return w.put(ctx, name, buf.Bytes())
}

func (w *Writer) put(ctx context.Context, name string, data []byte) error {
	if err := w.io.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	if err := w.store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
