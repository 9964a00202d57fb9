package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// HeaderSize is the size of the fixed frame header.
const HeaderSize = 17

// MaxPayload bounds the raw payload of a single frame.
const MaxPayload = 1 << 30

// ErrChecksum is returned when a frame fails CRC verification.
var ErrChecksum = errors.New("frame: checksum mismatch")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Write encodes values as one frame to w.
func Write(w io.Writer, tag uint32, values []float64, c Compression) error {
	rawLen := 8 * len(values)
	if rawLen > MaxPayload {
		return fmt.Errorf("frame: payload of %d bytes exceeds limit", rawLen)
	}
	raw := make([]byte, rawLen)
	for i, v := range values {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}

	wire, applied, err := compress(raw, c)
	if err != nil {
		return fmt.Errorf("frame: compress: %w", err)
	}

	buf := make([]byte, HeaderSize+len(wire))
	binary.LittleEndian.PutUint32(buf[0:], tag)
	buf[4] = byte(applied)
	binary.LittleEndian.PutUint32(buf[5:], uint32(rawLen))
	binary.LittleEndian.PutUint32(buf[9:], uint32(len(wire)))
	copy(buf[HeaderSize:], wire)

	crc := crc32.Update(crc32.Checksum(buf[:13], castagnoli), castagnoli, wire)
	binary.LittleEndian.PutUint32(buf[13:], crc)

	_, err = w.Write(buf)
	return err
}

// Read decodes one frame from r.
func Read(r io.Reader) (uint32, []float64, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	tag := binary.LittleEndian.Uint32(header[0:])
	c := Compression(header[4])
	rawLen := binary.LittleEndian.Uint32(header[5:])
	wireLen := binary.LittleEndian.Uint32(header[9:])
	want := binary.LittleEndian.Uint32(header[13:])

	if rawLen > MaxPayload || wireLen > MaxPayload || rawLen%8 != 0 {
		return 0, nil, fmt.Errorf("frame: invalid lengths raw=%d wire=%d", rawLen, wireLen)
	}

	wire := make([]byte, wireLen)
	if _, err := io.ReadFull(r, wire); err != nil {
		return 0, nil, fmt.Errorf("frame: read payload: %w", err)
	}
	if crc32.Update(crc32.Checksum(header[:13], castagnoli), castagnoli, wire) != want {
		return 0, nil, ErrChecksum
	}

	raw, err := decompress(wire, c, int(rawLen))
	if err != nil {
		return 0, nil, err
	}
	values := make([]float64, rawLen/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return tag, values, nil
}
