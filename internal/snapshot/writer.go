package snapshot

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"runtime"
	"time"

	"github.com/openviking/rowstore/blobstore"
	"github.com/openviking/rowstore/internal/compress"
	"github.com/openviking/rowstore/internal/resource"
	"golang.org/x/sync/errgroup"
)

// Options configures snapshot encoding.
type Options struct {
	// Compression applied to each block.
	Compression compress.Type
	// BlockSize is the target uncompressed size of a block. A row larger
	// than BlockSize gets a block of its own.
	BlockSize int
	// Concurrency bounds parallel block compression.
	Concurrency int
	// Resources throttles the upload. Nil means unthrottled.
	Resources *resource.Controller
	// CreatedAt is stamped into the header. Zero means time.Now.
	CreatedAt time.Time
}

// DefaultOptions returns LZ4 blocks of 64KiB compressed on all CPUs.
func DefaultOptions() Options {
	return Options{
		Compression: compress.LZ4,
		BlockSize:   64 * 1024,
		Concurrency: runtime.GOMAXPROCS(0),
	}
}

// Info summarizes a written snapshot.
type Info struct {
	Name   string
	Header Header
	Size   int
}

// Encode serializes rows into a snapshot blob. The rows are stored in the
// order given.
func Encode(ctx context.Context, lsn uint64, rows [][]byte, opts Options) ([]byte, Header, error) {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultOptions().BlockSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if uint64(len(rows)) > math.MaxUint32 {
		return nil, Header{}, fmt.Errorf("snapshot: %d rows exceed format limit", len(rows))
	}

	groups, err := splitBlocks(rows, opts.BlockSize)
	if err != nil {
		return nil, Header{}, err
	}

	blocks := make([][]byte, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, group := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw := make([]byte, 0, group.size)
			for _, row := range rows[group.start:group.end] {
				raw = binary.LittleEndian.AppendUint32(raw, uint32(len(row)))
				raw = append(raw, row...)
			}
			block, err := compress.AppendBlock(nil, raw, opts.Compression)
			if err != nil {
				return fmt.Errorf("snapshot: block %d: %w", i, err)
			}
			blocks[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Header{}, err
	}

	created := opts.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	h := Header{
		Version:     Version,
		Compression: opts.Compression,
		LSN:         lsn,
		CreatedNs:   created.UnixNano(),
		RowCount:    uint32(len(rows)),
		BlockCount:  uint32(len(blocks)),
	}

	size := HeaderSize + TrailerSize
	for _, b := range blocks {
		size += len(b)
	}
	out := h.Encode(make([]byte, 0, size))
	for _, b := range blocks {
		out = append(out, b...)
	}
	out = binary.LittleEndian.AppendUint32(out, crc32.Checksum(out, castagnoli))
	return out, h, nil
}

// Write encodes rows and stores them under name.
func Write(ctx context.Context, store blobstore.Store, name string, lsn uint64, rows [][]byte, opts Options) (Info, error) {
	data, h, err := Encode(ctx, lsn, rows, opts)
	if err != nil {
		return Info{}, err
	}
	if err := opts.Resources.AcquireIO(ctx, len(data)); err != nil {
		return Info{}, err
	}
	if err := store.Put(ctx, name, data); err != nil {
		return Info{}, fmt.Errorf("snapshot: put %s: %w", name, err)
	}
	return Info{Name: name, Header: h, Size: len(data)}, nil
}

type blockRange struct {
	start, end int
	size       int
}

func splitBlocks(rows [][]byte, target int) ([]blockRange, error) {
	var groups []blockRange
	cur := blockRange{}
	for i, row := range rows {
		entry := 4 + len(row)
		if uint64(entry) > math.MaxUint32-compress.BlockHeaderSize {
			return nil, fmt.Errorf("snapshot: row %d of %d bytes exceeds block limit", i, len(row))
		}
		if cur.end > cur.start && cur.size+entry > target {
			groups = append(groups, cur)
			cur = blockRange{start: i, end: i}
		}
		if uint64(cur.size)+uint64(entry) > math.MaxUint32 {
			return nil, fmt.Errorf("snapshot: block starting at row %d exceeds block limit", cur.start)
		}
		cur.end = i + 1
		cur.size += entry
	}
	if cur.end > cur.start {
		groups = append(groups, cur)
	}
	return groups, nil
}
