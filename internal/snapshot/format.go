package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/openviking/rowstore/internal/compress"
)

const (
	// Magic opens every snapshot blob.
	Magic = "ROWSNAP1"
	// Version is the current format version.
	Version = 1

	// HeaderSize is the encoded size of Header.
	HeaderSize = 8 + 4 + 1 + 3 + 8 + 8 + 4 + 4
	// TrailerSize is the CRC32C trailer after the last block.
	TrailerSize = 4

	// Prefix is the blob name prefix shared by all snapshots.
	Prefix = "snapshots/"
)

var (
	ErrInvalidMagic   = errors.New("snapshot: invalid magic")
	ErrInvalidVersion = errors.New("snapshot: unsupported version")
	ErrChecksum       = errors.New("snapshot: checksum mismatch")
	ErrCorrupt        = errors.New("snapshot: corrupt data")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Header describes a snapshot blob. It is stored at the start of the blob.
//
// Layout after the header: BlockCount blocks as framed by
// compress.AppendBlock, each holding [Length:4][row] entries, then a CRC32C
// of every preceding byte.
type Header struct {
	Version     uint32
	Compression compress.Type
	LSN         uint64 // last delta log sequence folded into the rows
	CreatedNs   int64
	RowCount    uint32
	BlockCount  uint32
}

// Encode appends the header to dst.
func (h *Header) Encode(dst []byte) []byte {
	dst = append(dst, Magic...)
	dst = binary.LittleEndian.AppendUint32(dst, h.Version)
	dst = append(dst, byte(h.Compression), 0, 0, 0)
	dst = binary.LittleEndian.AppendUint64(dst, h.LSN)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(h.CreatedNs))
	dst = binary.LittleEndian.AppendUint32(dst, h.RowCount)
	dst = binary.LittleEndian.AppendUint32(dst, h.BlockCount)
	return dst
}

// DecodeHeader parses the header at the start of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes for header", ErrCorrupt, len(buf))
	}
	if string(buf[:8]) != Magic {
		return Header{}, ErrInvalidMagic
	}
	h := Header{
		Version:     binary.LittleEndian.Uint32(buf[8:]),
		Compression: compress.Type(buf[12]),
		LSN:         binary.LittleEndian.Uint64(buf[16:]),
		CreatedNs:   int64(binary.LittleEndian.Uint64(buf[24:])),
		RowCount:    binary.LittleEndian.Uint32(buf[32:]),
		BlockCount:  binary.LittleEndian.Uint32(buf[36:]),
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrInvalidVersion, h.Version)
	}
	if h.Compression > compress.ZSTD {
		return Header{}, fmt.Errorf("%w: compression %d", ErrCorrupt, h.Compression)
	}
	return h, nil
}

// Name returns the blob name of a snapshot for a pointer generation.
// Names sort in generation order; the nonce keeps concurrent writers
// of the same generation from sharing a blob.
func Name(generation uint64, nonce string) string {
	return fmt.Sprintf("%s%020d-%s.snap", Prefix, generation, nonce)
}

// NewName returns a Name with a random nonce.
func NewName(generation uint64) string {
	return Name(generation, uuid.NewString())
}

// ParseName returns the generation encoded in a snapshot blob name.
func ParseName(name string) (uint64, bool) {
	base, ok := strings.CutPrefix(name, Prefix)
	if !ok {
		return 0, false
	}
	base, ok = strings.CutSuffix(base, ".snap")
	if !ok {
		return 0, false
	}
	digits, nonce, ok := strings.Cut(base, "-")
	if !ok || len(digits) != 20 || nonce == "" {
		return 0, false
	}
	gen, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}
