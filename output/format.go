package output

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/hupe1980/plsago"
	"github.com/hupe1980/plsago/model"
)

var binaryMagic = [8]byte{'P', 'L', 'S', 'A', 'J', 'P', '0', '1'}

var (
	// ErrBadMagic is returned when a binary joint file does not start with the
	// expected magic.
	ErrBadMagic = errors.New("output: bad binary magic")

	// ErrTruncated is returned when a joint file holds fewer cells than its
	// header declares.
	ErrTruncated = errors.New("output: truncated joint matrix")
)

// Round rounds p to the output rounding precision.
func Round(p float64) float64 {
	return math.Round(p*plsago.RoundingFactor) / plsago.RoundingFactor
}

// EncodeBinary writes the joint matrix in probability space: the magic, u32
// rows, u32 columns and rows×columns float64 values, row-major.
func EncodeBinary(w io.Writer, joint *model.Joint, rounding bool) error {
	bw := bufio.NewWriter(w)

	var hdr [16]byte
	copy(hdr[:8], binaryMagic[:])
	binary.LittleEndian.PutUint32(hdr[8:], uint32(joint.Rows()))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(joint.Cols()))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}

	var cell [8]byte
	for _, v := range joint.Data() {
		p := math.Exp(v)
		if rounding {
			p = Round(p)
		}
		binary.LittleEndian.PutUint64(cell[:], math.Float64bits(p))
		if _, err := bw.Write(cell[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// EncodeText writes the joint matrix in probability space as text.
func EncodeText(w io.Writer, joint *model.Joint) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%% %d %d\n", joint.Rows(), joint.Cols()); err != nil {
		return err
	}

	buf := make([]byte, 0, 64)
	for i := 0; i < joint.Rows(); i++ {
		for k, v := range joint.Row(i) {
			buf = strconv.AppendInt(buf[:0], int64(i), 10)
			buf = append(buf, ' ')
			buf = strconv.AppendInt(buf, int64(k), 10)
			buf = append(buf, ' ')
			buf = strconv.AppendFloat(buf, math.Exp(v), 'g', -1, 64)
			buf = append(buf, '\n')
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Matrix is a decoded joint matrix in probability space.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

// At returns p(i, k).
func (m *Matrix) At(i, k int) float64 { return m.Data[i*m.Cols+k] }

// Sum returns the total probability mass.
func (m *Matrix) Sum() float64 {
	var s float64
	for _, p := range m.Data {
		s += p
	}
	return s
}

// Decode reads a joint matrix written by EncodeBinary or EncodeText.
func Decode(data []byte) (*Matrix, error) {
	if bytes.HasPrefix(data, binaryMagic[:]) {
		return decodeBinary(data)
	}
	return decodeText(data)
}

func decodeBinary(data []byte) (*Matrix, error) {
	if len(data) < 16 {
		return nil, ErrTruncated
	}
	if !bytes.Equal(data[:8], binaryMagic[:]) {
		return nil, ErrBadMagic
	}
	m := &Matrix{
		Rows: int(binary.LittleEndian.Uint32(data[8:])),
		Cols: int(binary.LittleEndian.Uint32(data[12:])),
	}
	body := data[16:]
	n := m.Rows * m.Cols
	if len(body) != 8*n {
		return nil, fmt.Errorf("%w: want %d cells, have %d bytes", ErrTruncated, n, len(body))
	}
	m.Data = make([]float64, n)
	for c := range m.Data {
		m.Data[c] = math.Float64frombits(binary.LittleEndian.Uint64(body[8*c:]))
	}
	return m, nil
}

func decodeText(data []byte) (*Matrix, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	if !sc.Scan() {
		return nil, ErrTruncated
	}
	var m Matrix
	if _, err := fmt.Sscanf(sc.Text(), "%% %d %d", &m.Rows, &m.Cols); err != nil {
		return nil, fmt.Errorf("output: header: %w", err)
	}
	m.Data = make([]float64, m.Rows*m.Cols)

	seen := 0
	for line := 2; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("output: line %d: want 3 fields, got %d", line, len(fields))
		}
		i, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("output: line %d: %w", line, err)
		}
		k, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("output: line %d: %w", line, err)
		}
		p, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("output: line %d: %w", line, err)
		}
		if i < 0 || i >= m.Rows || k < 0 || k >= m.Cols {
			return nil, fmt.Errorf("output: line %d: cell (%d, %d) outside %dx%d", line, i, k, m.Rows, m.Cols)
		}
		m.Data[i*m.Cols+k] = p
		seen++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if seen != len(m.Data) {
		return nil, fmt.Errorf("%w: want %d cells, have %d", ErrTruncated, len(m.Data), seen)
	}
	return &m, nil
}
