package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/openviking/rowstore/data"
	"github.com/openviking/rowstore/internal/compress"
)

// Frame layout:
//
//	[CRC32:4][Flags:1][LSN:8][ExpireNs:8][Length:4][Payload:Length]
//
// The checksum (Castagnoli) covers every byte after itself. The payload is a
// delta row, zstd-compressed when flagZstd is set.
const (
	frameHeaderSize = 4 + 1 + 8 + 8 + 4
	flagZstd        = 1 << 0
	knownFlags      = flagZstd

	// MaxPayloadSize bounds a single frame payload.
	MaxPayloadSize = 256 << 20
)

var (
	ErrInvalidCRC     = errors.New("invalid WAL record checksum")
	ErrInvalidFlags   = errors.New("invalid WAL record flags")
	ErrRecordTooLarge = errors.New("WAL record too large")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Record is one logged change.
type Record struct {
	LSN   uint64
	Delta data.DeltaRecord
	// ExpireNs is the expiry of the candidate an upsert writes, in unix
	// nanoseconds. Delta rows do not carry it.
	ExpireNs uint64
}

// AppendFrame appends the frame of r to dst. Payloads of at least
// compressAbove bytes are zstd-compressed when that saves space; a negative
// compressAbove disables compression.
func (r *Record) AppendFrame(dst []byte, compressAbove int) ([]byte, error) {
	start := len(dst)
	dst = append(dst, make([]byte, frameHeaderSize)...)
	dst, err := r.Delta.AppendRow(dst)
	if err != nil {
		return nil, fmt.Errorf("wal: encode delta %d: %w", r.LSN, err)
	}

	var flags byte
	if raw := dst[start+frameHeaderSize:]; compressAbove >= 0 && len(raw) >= compressAbove {
		if z := compress.EncodeZstd(nil, raw); len(z) < len(raw) {
			dst = append(dst[:start+frameHeaderSize], z...)
			flags |= flagZstd
		}
	}

	length := len(dst) - start - frameHeaderSize
	if length > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, length)
	}

	h := dst[start : start+frameHeaderSize]
	h[4] = flags
	binary.LittleEndian.PutUint64(h[5:], r.LSN)
	binary.LittleEndian.PutUint64(h[13:], r.ExpireNs)
	binary.LittleEndian.PutUint32(h[21:], uint32(length))
	binary.LittleEndian.PutUint32(h[0:], crc32.Checksum(dst[start+4:], castagnoli))
	return dst, nil
}

// Decode reads one frame from r and returns the record and the frame size.
//
// It returns io.EOF at a clean end of the log and io.ErrUnexpectedEOF for a
// frame cut short, which is what a crash during append leaves behind.
func Decode(r io.Reader) (Record, int64, error) {
	var h [frameHeaderSize]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return Record{}, 0, err
	}

	length := binary.LittleEndian.Uint32(h[21:])
	if length > MaxPayloadSize {
		return Record{}, 0, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, 0, err
	}
	size := int64(frameHeaderSize) + int64(length)

	crc := crc32.Update(crc32.Checksum(h[4:], castagnoli), castagnoli, payload)
	if crc != binary.LittleEndian.Uint32(h[0:]) {
		return Record{}, size, ErrInvalidCRC
	}

	flags := h[4]
	if flags&^knownFlags != 0 {
		return Record{}, size, fmt.Errorf("%w: %#x", ErrInvalidFlags, flags)
	}
	if flags&flagZstd != 0 {
		var err error
		if payload, err = compress.DecodeZstd(nil, payload); err != nil {
			return Record{}, size, err
		}
	}

	delta, err := data.DeltaFromBytes(payload)
	if err != nil {
		return Record{}, size, err
	}
	return Record{
		LSN:      binary.LittleEndian.Uint64(h[5:]),
		Delta:    delta,
		ExpireNs: binary.LittleEndian.Uint64(h[13:]),
	}, size, nil
}
