// Package codec compresses collection payloads.
//
// The compression kind is recorded in each collection header, so readers
// decode any kind regardless of how the database that reads them is
// configured.
package codec

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies a payload compression algorithm.
type Compression uint8

const (
	// None stores the payload as is.
	None Compression = 0
	// LZ4 uses LZ4 block compression (fast).
	LZ4 Compression = 1
	// Zstd uses Zstandard (better ratio).
	Zstd Compression = 2
)

var (
	// ErrUnknownCompression is returned for an unrecognised compression kind.
	ErrUnknownCompression = errors.New("codec: unknown compression")
	// ErrSizeMismatch is returned when a payload does not decompress to its recorded length.
	ErrSizeMismatch = errors.New("codec: decompressed size mismatch")
)

// String returns the stable lower-case name.
func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Valid reports whether c is a known kind.
func (c Compression) Valid() bool {
	return c <= Zstd
}

// Parse maps a name ("none", "lz4", "zstd") to a Compression.
func Parse(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "zstandard":
		return Zstd, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

// Compress compresses data with kind. It returns the stored bytes and the
// kind actually applied: when compression does not shrink the payload the
// input is returned unchanged with None.
func Compress(kind Compression, data []byte) ([]byte, Compression, error) {
	if kind == None || len(data) == 0 {
		return data, None, nil
	}

	var out []byte
	switch kind {
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, None, fmt.Errorf("codec: lz4: %w", err)
		}
		out = buf[:n]
	case Zstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, None, fmt.Errorf("codec: zstd: %w", err)
		}
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, None, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(kind))
	}

	if len(out) == 0 || len(out) >= len(data) {
		return data, None, nil
	}
	return out, kind, nil
}

// Decompress reverses Compress. rawLen is the expected decompressed length.
func Decompress(kind Compression, data []byte, rawLen int) ([]byte, error) {
	switch kind {
	case None:
		if len(data) != rawLen {
			return nil, ErrSizeMismatch
		}
		return data, nil
	case LZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("codec: lz4: %w", err)
		}
		if n != rawLen {
			return nil, ErrSizeMismatch
		}
		return out, nil
	case Zstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("codec: zstd: %w", err)
		}
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(data, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("codec: zstd: %w", err)
		}
		if len(out) != rawLen {
			return nil, ErrSizeMismatch
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(kind))
	}
}
