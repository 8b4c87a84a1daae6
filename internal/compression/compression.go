// Package compression compresses engine table values with the codec
// named in the table's creation config.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a value codec. The numeric values are embedded in
// stored entries and must not change.
type Type uint8

const (
	None Type = iota
	Snappy
	Zstd
	LZ4
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Shared zstd coders: EncodeAll/DecodeAll on these are safe for
// concurrent use, so one of each serves every table.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Compress returns data encoded with t. For None the input is returned
// unchanged.
func Compress(t Type, data []byte) ([]byte, error) {
	switch t {
	case None:
		return data, nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case Zstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case LZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("compression: lz4: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compression: lz4: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("compression: unknown type %d", uint8(t))
	}
}

// Decompress reverses Compress. uncompressedLen is the expected output
// size, recorded alongside the payload by the entry encoding; a result
// of any other length is an error.
func Decompress(t Type, data []byte, uncompressedLen int) ([]byte, error) {
	var out []byte
	var err error
	switch t {
	case None:
		out = data
	case Snappy:
		out, err = snappy.Decode(nil, data)
	case Zstd:
		out, err = zstdDecoder.DecodeAll(data, make([]byte, 0, uncompressedLen))
	case LZ4:
		out, err = io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return nil, fmt.Errorf("compression: unknown type %d", uint8(t))
	}
	if err != nil {
		return nil, fmt.Errorf("compression: %s: %w", t, err)
	}
	if len(out) != uncompressedLen {
		return nil, fmt.Errorf("compression: %s: decoded %d bytes, expected %d", t, len(out), uncompressedLen)
	}
	return out, nil
}
