package snapshot

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"slices"

	"github.com/openviking/rowstore/blobstore"
	"github.com/openviking/rowstore/internal/compress"
)

// Decode verifies a snapshot blob and calls fn for every row in order.
// The row slice is only valid for the duration of the call.
func Decode(data []byte, fn func(row []byte) error) (Header, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Header{}, err
	}
	if len(data) < HeaderSize+TrailerSize {
		return Header{}, fmt.Errorf("%w: missing trailer", ErrCorrupt)
	}
	body := data[:len(data)-TrailerSize]
	want := binary.LittleEndian.Uint32(data[len(body):])
	if got := crc32.Checksum(body, castagnoli); got != want {
		return Header{}, fmt.Errorf("%w: got %08x, want %08x", ErrChecksum, got, want)
	}

	rest := body[HeaderSize:]
	var rows uint32
	for i := range h.BlockCount {
		block, n, err := compress.ReadBlock(rest, h.Compression)
		if err != nil {
			return Header{}, fmt.Errorf("%w: block %d: %w", ErrCorrupt, i, err)
		}
		rest = rest[n:]

		for len(block) > 0 {
			if len(block) < 4 {
				return Header{}, fmt.Errorf("%w: block %d: torn row length", ErrCorrupt, i)
			}
			size := uint64(binary.LittleEndian.Uint32(block))
			if uint64(len(block)-4) < size {
				return Header{}, fmt.Errorf("%w: block %d: row overruns block", ErrCorrupt, i)
			}
			if err := fn(block[4 : 4+size]); err != nil {
				return Header{}, err
			}
			block = block[4+size:]
			rows++
		}
	}
	if len(rest) != 0 {
		return Header{}, fmt.Errorf("%w: %d bytes after last block", ErrCorrupt, len(rest))
	}
	if rows != h.RowCount {
		return Header{}, fmt.Errorf("%w: %d rows, header says %d", ErrCorrupt, rows, h.RowCount)
	}
	return h, nil
}

// Read decodes the snapshot stored under name. Memory-mapped blobs are
// decoded in place after a sequential access hint.
func Read(ctx context.Context, store blobstore.Store, name string, fn func(row []byte) error) (Header, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return Header{}, err
	}
	defer blob.Close()

	if m, ok := blob.(blobstore.Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return Header{}, err
		}
		if seq, ok := blob.(blobstore.Sequential); ok {
			if err := seq.AdviseSequential(); err != nil {
				return Header{}, fmt.Errorf("snapshot: advise %s: %w", name, err)
			}
		}
		return Decode(data, fn)
	}

	data := make([]byte, blob.Size())
	if n, err := blob.ReadAt(ctx, data, 0); n != len(data) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Header{}, fmt.Errorf("snapshot: read %s: %d of %d bytes: %w", name, n, len(data), err)
	}
	return Decode(data, fn)
}

// Cleanup deletes snapshot blobs of generations older than live and returns
// how many it removed. Blobs of live or later generations belong to the
// current pointer or to writers that have not committed yet.
func Cleanup(ctx context.Context, store blobstore.Store, live uint64) (int, error) {
	names, err := store.List(ctx, Prefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		gen, ok := ParseName(name)
		if !ok || gen >= live {
			continue
		}
		if err := store.Delete(ctx, name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// List returns all snapshot blob names, oldest first.
func List(ctx context.Context, store blobstore.Store) ([]string, error) {
	names, err := store.List(ctx, Prefix)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(names, func(n string) bool {
		_, ok := ParseName(n)
		return !ok
	}), nil
}
