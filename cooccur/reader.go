package cooccur

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Format selects the on-disk encoding of a co-occurrence file.
type Format uint8

const (
	// FormatBinary is the little-endian binary encoding.
	FormatBinary Format = iota
	// FormatText is the whitespace separated text encoding.
	FormatText
)

// String implements fmt.Stringer.
func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "binary"
}

var binaryMagic = [8]byte{'P', 'L', 'S', 'A', 'C', 'O', '0', '1'}

// ErrBadMagic is returned when a binary file does not start with the expected magic.
var ErrBadMagic = errors.New("cooccur: bad binary magic")

// ReadText parses the text encoding.
func ReadText(r io.Reader) (*Matrix, error) {
	var b *Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "%") {
			if b != nil {
				return nil, fmt.Errorf("cooccur: line %d: dimensions must precede entries", lineNo)
			}
			fields := strings.Fields(strings.TrimPrefix(line, "%"))
			if len(fields) != 2 {
				return nil, fmt.Errorf("cooccur: line %d: want \"%% rows columns\"", lineNo)
			}
			rows, err := parseIndex(fields[0])
			if err != nil {
				return nil, fmt.Errorf("cooccur: line %d: %w", lineNo, err)
			}
			cols, err := parseIndex(fields[1])
			if err != nil {
				return nil, fmt.Errorf("cooccur: line %d: %w", lineNo, err)
			}
			b = NewBuilderWithDims(rows, cols)
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("cooccur: line %d: want 3 fields, got %d", lineNo, len(fields))
		}
		row, err := parseIndex(fields[0])
		if err != nil {
			return nil, fmt.Errorf("cooccur: line %d: %w", lineNo, err)
		}
		col, err := parseIndex(fields[1])
		if err != nil {
			return nil, fmt.Errorf("cooccur: line %d: %w", lineNo, err)
		}
		count, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("cooccur: line %d: %w", lineNo, err)
		}
		if b == nil {
			b = NewBuilder()
		}
		if err := b.Add(row, col, count); err != nil {
			return nil, fmt.Errorf("cooccur: line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrEmpty
	}
	return b.Build()
}

func parseIndex(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// ReadBinary parses the binary encoding.
func ReadBinary(r io.Reader) (*Matrix, error) {
	br := bufio.NewReader(r)

	var magic [8]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("cooccur: read header: %w", err)
	}
	if magic != binaryMagic {
		return nil, ErrBadMagic
	}

	header := make([]byte, 16)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("cooccur: read header: %w", err)
	}
	rows := binary.LittleEndian.Uint32(header[0:])
	cols := binary.LittleEndian.Uint32(header[4:])
	count := binary.LittleEndian.Uint64(header[8:])
	if count == 0 {
		return nil, ErrEmpty
	}

	b := NewBuilderWithDims(rows, cols)
	rec := make([]byte, 16)
	for n := uint64(0); n < count; n++ {
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, fmt.Errorf("cooccur: record %d: %w", n, err)
		}
		row := binary.LittleEndian.Uint32(rec[0:])
		col := binary.LittleEndian.Uint32(rec[4:])
		c := math.Float64frombits(binary.LittleEndian.Uint64(rec[8:]))
		if err := b.Add(row, col, c); err != nil {
			return nil, fmt.Errorf("cooccur: record %d: %w", n, err)
		}
	}
	return b.Build()
}

// WriteBinary encodes m in the binary format. Counts are written raw.
func WriteBinary(w io.Writer, m *Matrix) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(binaryMagic[:]); err != nil {
		return err
	}
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:], m.numTermsA)
	binary.LittleEndian.PutUint32(header[4:], m.numTermsB)
	binary.LittleEndian.PutUint64(header[8:], uint64(m.nonZeros))
	if _, err := bw.Write(header); err != nil {
		return err
	}
	rec := make([]byte, 16)
	for i, row := range m.rows {
		for _, e := range row {
			binary.LittleEndian.PutUint32(rec[0:], uint32(i))
			binary.LittleEndian.PutUint32(rec[4:], e.Column)
			binary.LittleEndian.PutUint64(rec[8:], math.Float64bits(math.Exp(e.LogCount)))
			if _, err := bw.Write(rec); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Source fetches a named blob. blobstore.BlobStore implementations satisfy it.
type Source interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

// Load reads the named co-occurrence file from src in the given format.
func Load(ctx context.Context, src Source, name string, format Format) (*Matrix, error) {
	data, err := src.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("cooccur: open %s: %w", name, err)
	}
	var m *Matrix
	switch format {
	case FormatText:
		m, err = ReadText(bytes.NewReader(data))
	default:
		m, err = ReadBinary(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("cooccur: %s: %w", name, err)
	}
	return m, nil
}
