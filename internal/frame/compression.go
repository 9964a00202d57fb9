package frame

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the payload compression of a frame.
type Compression uint8

const (
	// None sends payloads as raw little-endian float64 values.
	None Compression = 0
	// LZ4 uses LZ4 block compression (fast).
	LZ4 Compression = 1
	// ZSTD uses Zstandard (better ratio).
	ZSTD Compression = 2
)

// String implements fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", c)
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("frame: unknown compression %q", s)
	}
}

// minCompressSize is the payload size below which compression is skipped.
const minCompressSize = 256

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// compress returns the wire payload and the compression actually applied.
func compress(raw []byte, c Compression) ([]byte, Compression, error) {
	if c == None || len(raw) < minCompressSize {
		return raw, None, nil
	}

	var out []byte
	switch c {
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, None, err
		}
		out = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		out = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, None, fmt.Errorf("frame: unknown compression %d", c)
	}

	// Not worth it; n == 0 means lz4 found the block incompressible.
	if len(out) == 0 || float64(len(out)) > float64(len(raw))*0.9 {
		return raw, None, nil
	}
	return out, c, nil
}

func decompress(wire []byte, c Compression, rawLen int) ([]byte, error) {
	switch c {
	case None:
		if len(wire) != rawLen {
			return nil, errors.New("frame: payload size mismatch")
		}
		return wire, nil
	case LZ4:
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(wire, raw)
		if err != nil {
			return nil, err
		}
		if n != rawLen {
			return nil, errors.New("frame: decompressed size mismatch")
		}
		return raw, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		raw, err := dec.DecodeAll(wire, make([]byte, 0, rawLen))
		if err != nil {
			return nil, err
		}
		if len(raw) != rawLen {
			return nil, errors.New("frame: decompressed size mismatch")
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("frame: unknown compression %d", c)
	}
}
