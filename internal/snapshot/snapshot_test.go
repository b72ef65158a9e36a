package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"testing"
	"time"

	"github.com/openviking/rowstore/blobstore"
	"github.com/openviking/rowstore/data"
	"github.com/openviking/rowstore/internal/compress"
	"github.com/openviking/rowstore/internal/resource"
	"github.com/openviking/rowstore/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidateRows(t testing.TB, n int) [][]byte {
	t.Helper()
	rng := testutil.NewRNG(42)
	rows := make([][]byte, n)
	for i, c := range rng.Candidates(n, 16) {
		b, err := c.Serialize()
		require.NoError(t, err)
		rows[i] = b
	}
	return rows
}

func collect(t *testing.T, blob []byte) (Header, [][]byte) {
	t.Helper()
	var rows [][]byte
	h, err := Decode(blob, func(row []byte) error {
		rows = append(rows, bytes.Clone(row))
		return nil
	})
	require.NoError(t, err)
	return h, rows
}

func TestEncodeDecode(t *testing.T) {
	rows := candidateRows(t, 200)

	for _, ct := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		t.Run(ct.String(), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Compression = ct
			opts.BlockSize = 1024

			blob, h, err := Encode(context.Background(), 99, rows, opts)
			require.NoError(t, err)
			assert.Equal(t, uint32(200), h.RowCount)
			assert.Greater(t, h.BlockCount, uint32(1))
			assert.Equal(t, ct, h.Compression)

			got, decoded := collect(t, blob)
			assert.Equal(t, h, got)
			assert.Equal(t, uint64(99), got.LSN)
			assert.Equal(t, rows, decoded)

			c, err := data.CandidateFromBytes(decoded[7])
			require.NoError(t, err)
			assert.Equal(t, uint64(8), c.Label)
		})
	}
}

func TestEncode_Empty(t *testing.T) {
	blob, h, err := Encode(context.Background(), 0, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, blob, HeaderSize+TrailerSize)
	assert.Zero(t, h.BlockCount)

	_, rows := collect(t, blob)
	assert.Empty(t, rows)
}

func TestEncode_EmptyAndOversizedRows(t *testing.T) {
	rows := [][]byte{{}, bytes.Repeat([]byte{7}, 5000), {1}}
	opts := DefaultOptions()
	opts.BlockSize = 100

	blob, h, err := Encode(context.Background(), 1, rows, opts)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h.BlockCount)

	_, got := collect(t, blob)
	assert.Equal(t, rows, got)
}

func TestSplitBlocks(t *testing.T) {
	rows := [][]byte{make([]byte, 6), make([]byte, 6), make([]byte, 30), make([]byte, 1)}
	groups, err := splitBlocks(rows, 20)
	require.NoError(t, err)
	assert.Equal(t, []blockRange{
		{start: 0, end: 2, size: 20},
		{start: 2, end: 3, size: 34},
		{start: 3, end: 4, size: 5},
	}, groups)
}

func TestDecode_Errors(t *testing.T) {
	rows := candidateRows(t, 10)
	blob, _, err := Encode(context.Background(), 5, rows, DefaultOptions())
	require.NoError(t, err)
	noop := func([]byte) error { return nil }

	t.Run("checksum", func(t *testing.T) {
		bad := bytes.Clone(blob)
		bad[HeaderSize+3] ^= 0xff
		_, err := Decode(bad, noop)
		assert.ErrorIs(t, err, ErrChecksum)
	})

	t.Run("magic", func(t *testing.T) {
		bad := bytes.Clone(blob)
		bad[0] = 'X'
		_, err := Decode(bad, noop)
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("version", func(t *testing.T) {
		bad := bytes.Clone(blob)
		binary.LittleEndian.PutUint32(bad[8:], 9)
		_, err := Decode(bad, noop)
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Decode(blob[:HeaderSize-1], noop)
		assert.ErrorIs(t, err, ErrCorrupt)
		_, err = Decode(blob[:len(blob)-10], noop)
		assert.Error(t, err)
	})

	t.Run("row count", func(t *testing.T) {
		bad := bytes.Clone(blob[:len(blob)-TrailerSize])
		binary.LittleEndian.PutUint32(bad[32:], 11)
		bad = binary.LittleEndian.AppendUint32(bad, crc(bad))
		_, err := Decode(bad, noop)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("callback error", func(t *testing.T) {
		stop := errors.New("stop")
		_, err := Decode(blob, func([]byte) error { return stop })
		assert.ErrorIs(t, err, stop)
	})
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	rows := candidateRows(t, 50)

	stores := map[string]blobstore.Store{
		"memory": blobstore.NewMemoryStore(),
		"local":  blobstore.NewLocalStore(t.TempDir()),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Resources = resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 30})

			info, err := Write(ctx, store, Name(1, "w"), 7, rows, opts)
			require.NoError(t, err)
			assert.Equal(t, Name(1, "w"), info.Name)
			assert.Positive(t, info.Size)

			var got [][]byte
			h, err := Read(ctx, store, Name(1, "w"), func(row []byte) error {
				got = append(got, bytes.Clone(row))
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, info.Header, h)
			assert.Equal(t, rows, got)
		})
	}
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(context.Background(), blobstore.NewMemoryStore(), Name(1, "w"), nil)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestEncode_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Encode(ctx, 0, candidateRows(t, 5), DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseName(t *testing.T) {
	assert.Equal(t, "snapshots/00000000000000000012-ab.snap", Name(12, "ab"))

	a, b := NewName(3), NewName(3)
	assert.NotEqual(t, a, b)

	tests := []struct {
		name string
		gen  uint64
		ok   bool
	}{
		{Name(12, "ab"), 12, true},
		{a, 3, true},
		{Name(math.MaxUint64, "x"), math.MaxUint64, true},
		{"snapshots/00000000000000000012.snap", 0, false},
		{"snapshots/00000000000000000012-.snap", 0, false},
		{"snapshots/12-ab.snap", 0, false},
		{"snapshots/0000000000000000001x-ab.snap", 0, false},
		{"snapshots/00000000000000000012-ab.tmp", 0, false},
		{"other/00000000000000000012-ab.snap", 0, false},
	}
	for _, tt := range tests {
		gen, ok := ParseName(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.gen, gen, tt.name)
	}
}

func TestListCleanup(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	for gen := uint64(1); gen <= 3; gen++ {
		require.NoError(t, store.Put(ctx, Name(gen, "a"), []byte("x")))
	}
	// A second writer has uploaded generation 4 but not committed it yet.
	pending := Name(4, "b")
	require.NoError(t, store.Put(ctx, pending, []byte("x")))
	require.NoError(t, store.Put(ctx, blobstore.CurrentName, []byte("{}")))
	require.NoError(t, store.Put(ctx, Prefix+"notes.txt", []byte("x")))

	names, err := List(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{Name(1, "a"), Name(2, "a"), Name(3, "a"), pending}, names)

	n, err := Cleanup(ctx, store, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names, err = List(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{Name(3, "a"), pending}, names)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, all, blobstore.CurrentName)
	assert.Contains(t, all, Prefix+"notes.txt")
}

func TestEncode_CreatedAt(t *testing.T) {
	opts := DefaultOptions()
	opts.CreatedAt = time.Unix(1_700_000_000, 5)
	_, h, err := Encode(context.Background(), 1, candidateRows(t, 3), opts)
	require.NoError(t, err)
	assert.Equal(t, opts.CreatedAt.UnixNano(), h.CreatedNs)

	before := time.Now().UnixNano()
	_, h, err = Encode(context.Background(), 1, candidateRows(t, 3), DefaultOptions())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, h.CreatedNs, before)
}

func BenchmarkEncode(b *testing.B) {
	rows := candidateRows(b, 10_000)
	for _, ct := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		b.Run(fmt.Sprint(ct), func(b *testing.B) {
			opts := DefaultOptions()
			opts.Compression = ct
			b.ReportAllocs()
			for b.Loop() {
				if _, _, err := Encode(context.Background(), 0, rows, opts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func crc(b []byte) uint32 {
	return crc32.Checksum(b, castagnoli)
}
