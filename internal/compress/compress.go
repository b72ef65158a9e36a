// Package compress frames byte blocks compressed with LZ4 or ZSTD.
//
// A block is [UncompressedSize:4][CompressedSize:4][data]. A CompressedSize
// of 0 marks data stored as is, which happens when compression saves less
// than 10%.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type is a block compression algorithm. Values are persisted.
type Type uint8

const (
	// None stores blocks uncompressed.
	None Type = 0
	// LZ4 favors speed.
	LZ4 Type = 1
	// ZSTD favors ratio.
	ZSTD Type = 2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType returns the Type named s ("none", "lz4" or "zstd").
func ParseType(s string) (Type, error) {
	switch s {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("compress: unknown type %q", s)
	}
}

// BlockHeaderSize is the size of the block header.
const BlockHeaderSize = 8

// ErrCorruptBlock is returned for blocks whose header or data is inconsistent.
var ErrCorruptBlock = errors.New("compress: corrupt block")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return dec
}

// EncodeZstd appends the zstd frame of src to dst.
func EncodeZstd(dst, src []byte) []byte {
	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(src, dst)
}

// DecodeZstd appends the decompressed content of a zstd frame to dst.
func DecodeZstd(dst, src []byte) ([]byte, error) {
	dec := getZstdDecoder()
	defer zstdDecoderPool.Put(dec)
	out, err := dec.DecodeAll(src, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
	}
	return out, nil
}

// AppendBlock compresses data with t and appends the framed block to dst.
func AppendBlock(dst, data []byte, t Type) ([]byte, error) {
	var compressed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0: incompressible
	case ZSTD:
		compressed = EncodeZstd(nil, data)
	default:
		return nil, fmt.Errorf("compress: unknown type %d", uint8(t))
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(data)))
		dst = binary.LittleEndian.AppendUint32(dst, 0)
		return append(dst, data...), nil
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(data)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(compressed)))
	return append(dst, compressed...), nil
}

// ReadBlock decodes the block at the start of src, compressed with t. It
// returns the block content and the number of bytes of src it occupied.
// Uncompressed content aliases src.
func ReadBlock(src []byte, t Type) ([]byte, int, error) {
	if len(src) < BlockHeaderSize {
		return nil, 0, fmt.Errorf("%w: %d bytes for header", ErrCorruptBlock, len(src))
	}
	rawSize := uint64(binary.LittleEndian.Uint32(src[0:]))
	compSize := uint64(binary.LittleEndian.Uint32(src[4:]))

	if compSize == 0 {
		end := BlockHeaderSize + rawSize
		if uint64(len(src)) < end {
			return nil, 0, fmt.Errorf("%w: block extends beyond data", ErrCorruptBlock)
		}
		return src[BlockHeaderSize:end], int(end), nil
	}

	end := BlockHeaderSize + compSize
	if uint64(len(src)) < end {
		return nil, 0, fmt.Errorf("%w: compressed block extends beyond data", ErrCorruptBlock)
	}
	payload := src[BlockHeaderSize:end]
	out := make([]byte, rawSize)

	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
		}
		out = out[:n]
	case ZSTD:
		var err error
		if out, err = DecodeZstd(out[:0], payload); err != nil {
			return nil, 0, err
		}
	default:
		return nil, 0, fmt.Errorf("%w: compressed block with type %s", ErrCorruptBlock, t)
	}
	if uint64(len(out)) != rawSize {
		return nil, 0, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
	}
	return out, int(end), nil
}
