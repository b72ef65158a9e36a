package rowstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openviking/rowstore/blobstore"
	"github.com/openviking/rowstore/data"
	"github.com/openviking/rowstore/internal/fs"
	"github.com/openviking/rowstore/internal/resource"
	"github.com/openviking/rowstore/internal/snapshot"
	"github.com/openviking/rowstore/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// epoch keeps every random expiry in the future.
func epoch() time.Time { return time.Unix(0, 0) }

func openTestStore(t *testing.T, dir string, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(epoch)}, opts...)
	s, err := Open(context.Background(), dir, opts...)
	require.NoError(t, err)
	return s
}

func collect(t *testing.T, s *Store) map[uint64]data.CandidateData {
	t.Helper()
	out := make(map[uint64]data.CandidateData)
	require.NoError(t, s.Range(func(c data.CandidateData) bool {
		out[c.Label] = c
		return true
	}))
	return out
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("UpsertAndGet", func(t *testing.T) {
		s := openTestStore(t, t.TempDir())
		defer s.Close()

		c := data.CandidateData{
			Label:          123,
			Vector:         []float32{0.1, 0.2, 0.3},
			SparseRawTerms: []string{"a", "b"},
			SparseValues:   []float32{1, 2},
			Fields:         `{"x":1}`,
			ExpireNsTs:     99,
		}
		require.NoError(t, s.Upsert(ctx, c))

		got, err := s.Get(123)
		require.NoError(t, err)
		assert.Equal(t, c, got)
		assert.Equal(t, 1, s.Len())

		row, ok := s.GetRow(123)
		require.True(t, ok)
		want, err := c.Serialize()
		require.NoError(t, err)
		assert.Equal(t, want, row)
	})

	t.Run("ZeroValueCandidate", func(t *testing.T) {
		s := openTestStore(t, t.TempDir())
		defer s.Close()

		require.NoError(t, s.Upsert(ctx, data.CandidateData{}))
		got, err := s.Get(0)
		require.NoError(t, err)
		assert.Equal(t, data.CandidateData{}, got)
	})

	t.Run("Replace", func(t *testing.T) {
		s := openTestStore(t, t.TempDir())
		defer s.Close()

		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1, Fields: `{"v":1}`}))
		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1, Fields: `{"v":2}`}))

		got, err := s.Get(1)
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, got.Fields)
		assert.Equal(t, 1, s.Len())
		assert.Equal(t, uint64(2), s.Stats().LSN)
	})

	t.Run("Delete", func(t *testing.T) {
		s := openTestStore(t, t.TempDir())
		defer s.Close()

		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 7}))
		require.NoError(t, s.Delete(ctx, 7))

		_, err := s.Get(7)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, 7), ErrNotFound)
		assert.Zero(t, s.Len())
		assert.Zero(t, s.Stats().MemoryBytes)
	})

	t.Run("SparseLengthMismatch", func(t *testing.T) {
		s := openTestStore(t, t.TempDir())
		defer s.Close()

		err := s.Upsert(ctx, data.CandidateData{Label: 5, SparseRawTerms: []string{"a"}})
		var target *ErrSparseLengthMismatch
		require.ErrorAs(t, err, &target)
		assert.Equal(t, uint64(5), target.Label)
		assert.Equal(t, 1, target.Terms)
		assert.Zero(t, target.Values)
		assert.Zero(t, s.Len())
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := openTestStore(t, t.TempDir())
		defer s.Close()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, s.Upsert(cctx, data.CandidateData{Label: 1}), context.Canceled)
		assert.ErrorIs(t, s.Delete(cctx, 1), context.Canceled)
		_, err := s.Snapshot(cctx)
		assert.Error(t, err)
	})

	t.Run("Range", func(t *testing.T) {
		s := openTestStore(t, t.TempDir())
		defer s.Close()

		for _, label := range []uint64{30, 10, 20} {
			require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: label}))
		}
		var labels []uint64
		require.NoError(t, s.Range(func(c data.CandidateData) bool {
			labels = append(labels, c.Label)
			return len(labels) < 2
		}))
		assert.Equal(t, []uint64{10, 20}, labels)
	})

	t.Run("Closed", func(t *testing.T) {
		s := openTestStore(t, t.TempDir())
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.Close(), ErrClosed)
		assert.ErrorIs(t, s.Upsert(ctx, data.CandidateData{Label: 1}), ErrClosed)
		assert.ErrorIs(t, s.Delete(ctx, 1), ErrClosed)
		_, err := s.Get(1)
		assert.ErrorIs(t, err, ErrClosed)
		_, err = s.ExpireTTL(ctx, time.Now())
		assert.ErrorIs(t, err, ErrClosed)
		_, err = s.Snapshot(ctx)
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, s.Sync(), ErrClosed)
		assert.ErrorIs(t, s.Range(func(data.CandidateData) bool { return true }), ErrClosed)
	})
}

func TestStore_Recovery(t *testing.T) {
	ctx := context.Background()

	t.Run("FromDeltaLog", func(t *testing.T) {
		dir := t.TempDir()
		rng := testutil.NewRNG(1)

		s := openTestStore(t, dir)
		want := make(map[uint64]data.CandidateData)
		for _, c := range rng.Candidates(50, 8) {
			require.NoError(t, s.Upsert(ctx, c))
			want[c.Label] = c
		}
		for label := uint64(1); label <= 50; label += 5 {
			require.NoError(t, s.Delete(ctx, label))
			delete(want, label)
		}
		require.NoError(t, s.Close())

		s = openTestStore(t, dir)
		defer s.Close()
		assert.Equal(t, want, collect(t, s))
		assert.Equal(t, uint64(60), s.Stats().LSN)
	})

	t.Run("FromSnapshotAndDeltaLog", func(t *testing.T) {
		dir := t.TempDir()
		rng := testutil.NewRNG(2)

		s := openTestStore(t, dir)
		want := make(map[uint64]data.CandidateData)
		for _, c := range rng.Candidates(40, 16) {
			require.NoError(t, s.Upsert(ctx, c))
			want[c.Label] = c
		}

		ptr, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), ptr.Generation)
		gen, ok := snapshot.ParseName(ptr.Snapshot)
		require.True(t, ok, ptr.Snapshot)
		assert.Equal(t, uint64(1), gen)
		assert.Equal(t, uint64(40), ptr.LSN)
		assert.Equal(t, 40, ptr.Rows)
		assert.Equal(t, epoch().UTC(), ptr.CreatedAt)
		assert.Equal(t, int64(12), s.Stats().WALBytes)

		// Changes after the snapshot live only in the delta log.
		c := rng.Candidate(41, 16)
		require.NoError(t, s.Upsert(ctx, c))
		want[41] = c
		require.NoError(t, s.Delete(ctx, 3))
		delete(want, 3)
		require.NoError(t, s.Close())

		s = openTestStore(t, dir)
		defer s.Close()
		assert.Equal(t, want, collect(t, s))

		st := s.Stats()
		assert.Equal(t, uint64(42), st.LSN)
		assert.Equal(t, uint64(1), st.Generation)
		assert.Equal(t, ptr.Snapshot, st.Snapshot)
	})

	t.Run("TornTail", func(t *testing.T) {
		dir := t.TempDir()

		s := openTestStore(t, dir)
		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1, Fields: "{}"}))
		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 2, Fields: "{}"}))
		require.NoError(t, s.Close())

		f, err := os.OpenFile(filepath.Join(dir, walFileName), os.O_APPEND|os.O_WRONLY, 0)
		require.NoError(t, err)
		_, err = f.Write([]byte{0xde, 0xad, 0xbe})
		require.NoError(t, err)
		require.NoError(t, f.Close())

		s = openTestStore(t, dir)
		defer s.Close()
		assert.Equal(t, 2, s.Len())

		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 3}))
		assert.Equal(t, uint64(3), s.Stats().LSN)
	})

	t.Run("CorruptSnapshot", func(t *testing.T) {
		dir := t.TempDir()

		s := openTestStore(t, dir)
		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1}))
		ptr, err := s.Snapshot(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		path := filepath.Join(dir, blobDirName, filepath.FromSlash(ptr.Snapshot))
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xff
		require.NoError(t, os.WriteFile(path, raw, 0o644))

		_, err = Open(ctx, dir)
		var target *ErrRecovery
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "snapshot", target.Stage)
		assert.ErrorIs(t, err, snapshot.ErrChecksum)
	})

	t.Run("MissingSnapshot", func(t *testing.T) {
		dir := t.TempDir()

		s := openTestStore(t, dir)
		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1}))
		ptr, err := s.Snapshot(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		require.NoError(t, os.Remove(filepath.Join(dir, blobDirName, filepath.FromSlash(ptr.Snapshot))))

		_, err = Open(ctx, dir)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}

func TestStore_Snapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("CleansUpOldSnapshots", func(t *testing.T) {
		dir := t.TempDir()
		s := openTestStore(t, dir, WithCompression(CompressionZSTD), WithSnapshotBlockSize(128))
		defer s.Close()

		rng := testutil.NewRNG(3)
		for _, c := range rng.Candidates(20, 4) {
			require.NoError(t, s.Upsert(ctx, c))
		}
		_, err := s.Snapshot(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Upsert(ctx, rng.Candidate(21, 4)))
		ptr, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), ptr.Generation)
		assert.Equal(t, 21, ptr.Rows)

		names, err := snapshot.List(ctx, blobstore.NewLocalStore(filepath.Join(dir, blobDirName)))
		require.NoError(t, err)
		assert.Equal(t, []string{ptr.Snapshot}, names)
	})

	t.Run("EmptyTable", func(t *testing.T) {
		s := openTestStore(t, t.TempDir())
		defer s.Close()

		ptr, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), ptr.Generation)
		assert.Zero(t, ptr.Rows)
	})

	t.Run("MemoryBlobStore", func(t *testing.T) {
		blobs := blobstore.NewMemoryStore()
		commits := blobstore.NewBlobCommitStore(blobs)
		rng := testutil.NewRNG(4)
		cands := rng.Candidates(10, 8)

		s := openTestStore(t, t.TempDir(), WithBlobStore(blobs), WithCommitStore(commits))
		for _, c := range cands {
			require.NoError(t, s.Upsert(ctx, c))
		}
		_, err := s.Snapshot(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		// A fresh directory recovers from the blob store alone.
		s = openTestStore(t, t.TempDir(), WithBlobStore(blobs), WithCommitStore(commits))
		defer s.Close()
		got := collect(t, s)
		require.Len(t, got, len(cands))
		for _, c := range cands {
			assert.Equal(t, c, got[c.Label])
		}
	})

	t.Run("CommitConflict", func(t *testing.T) {
		blobs := blobstore.NewMemoryStore()
		commits := &failingCommitStore{CommitStore: blobstore.NewBlobCommitStore(blobs)}

		s := openTestStore(t, t.TempDir(), WithBlobStore(blobs), WithCommitStore(commits))
		defer s.Close()
		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1}))
		walBytes := s.Stats().WALBytes

		commits.fail.Store(true)
		_, err := s.Snapshot(ctx)
		assert.ErrorIs(t, err, blobstore.ErrConcurrentModification)

		names, err := blobs.List(ctx, snapshot.Prefix)
		require.NoError(t, err)
		assert.Empty(t, names)
		assert.Equal(t, walBytes, s.Stats().WALBytes)
		assert.Zero(t, s.Stats().Generation)

		commits.fail.Store(false)
		ptr, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), ptr.Generation)
	})

	t.Run("SharedBlobStore", func(t *testing.T) {
		blobs := blobstore.NewMemoryStore()
		commits := blobstore.NewBlobCommitStore(blobs)

		a := openTestStore(t, t.TempDir(), WithBlobStore(blobs), WithCommitStore(commits))
		defer a.Close()
		b := openTestStore(t, t.TempDir(), WithBlobStore(blobs), WithCommitStore(commits))
		defer b.Close()

		require.NoError(t, a.Upsert(ctx, data.CandidateData{Label: 1}))
		won, err := a.Snapshot(ctx)
		require.NoError(t, err)

		// b still holds generation 0 and loses the race for generation 1.
		require.NoError(t, b.Upsert(ctx, data.CandidateData{Label: 2}))
		_, err = b.Snapshot(ctx)
		assert.ErrorIs(t, err, blobstore.ErrConcurrentModification)

		names, err := snapshot.List(ctx, blobs)
		require.NoError(t, err)
		assert.Equal(t, []string{won.Snapshot}, names)

		s := openTestStore(t, t.TempDir(), WithBlobStore(blobs), WithCommitStore(commits))
		defer s.Close()
		assert.Equal(t, 1, s.Len())
		_, err = s.Get(1)
		require.NoError(t, err)
		_, err = s.Get(2)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("AmbiguousCommit", func(t *testing.T) {
		blobs := blobstore.NewMemoryStore()
		commits := &lostAckCommitStore{CommitStore: blobstore.NewBlobCommitStore(blobs)}

		s := openTestStore(t, t.TempDir(), WithBlobStore(blobs), WithCommitStore(commits))
		defer s.Close()
		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 7}))
		_, err := s.Snapshot(ctx)
		assert.ErrorIs(t, err, errLostAck)

		// The pointer landed, so its blob must survive the failed call.
		ptr, err := commits.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), ptr.Generation)
		names, err := snapshot.List(ctx, blobs)
		require.NoError(t, err)
		assert.Equal(t, []string{ptr.Snapshot}, names)

		r := openTestStore(t, t.TempDir(), WithBlobStore(blobs), WithCommitStore(commits))
		defer r.Close()
		assert.Equal(t, 1, r.Len())
	})

	t.Run("StampsStoreClock", func(t *testing.T) {
		dir := t.TempDir()
		at := time.Unix(1_700_000_000, 42)
		s := openTestStore(t, dir, WithClock(func() time.Time { return at }))
		defer s.Close()
		require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1}))

		ptr, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.True(t, at.Equal(ptr.CreatedAt))

		raw, err := blobstore.ReadAll(ctx, blobstore.NewLocalStore(filepath.Join(dir, blobDirName)), ptr.Snapshot)
		require.NoError(t, err)
		h, err := snapshot.DecodeHeader(raw)
		require.NoError(t, err)
		assert.Equal(t, ptr.CreatedAt.UnixNano(), h.CreatedNs)
	})
}

var errLostAck = errors.New("commit acknowledgement lost")

// lostAckCommitStore applies the commit but reports a failure.
type lostAckCommitStore struct {
	blobstore.CommitStore
}

func (l *lostAckCommitStore) Commit(ctx context.Context, prev, next blobstore.Pointer) error {
	if err := l.CommitStore.Commit(ctx, prev, next); err != nil {
		return err
	}
	return errLostAck
}

type failingCommitStore struct {
	blobstore.CommitStore
	fail atomic.Bool
}

func (f *failingCommitStore) Commit(ctx context.Context, prev, next blobstore.Pointer) error {
	if f.fail.Load() {
		return blobstore.ErrConcurrentModification
	}
	return f.CommitStore.Commit(ctx, prev, next)
}

func TestStore_ExpireTTL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	var nowNs atomic.Int64
	clock := func() time.Time { return time.Unix(0, nowNs.Load()) }

	s := openTestStore(t, dir, WithClock(clock), WithTTLGranularity(time.Nanosecond*50))
	require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1, ExpireNsTs: 100}))
	require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 2, ExpireNsTs: 200}))
	require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 3}))
	assert.Equal(t, 2, s.Stats().PendingTTL)

	expired, err := s.ExpireTTL(ctx, time.Unix(0, 150))
	require.NoError(t, err)
	assert.Equal(t, []data.TTLData{{Label: 1}}, expired)
	assert.Equal(t, 2, s.Len())

	// Past its expiry but not yet swept: hidden from Get, still counted.
	nowNs.Store(250)
	_, err = s.Get(2)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, s.Len())
	assert.Len(t, collect(t, s), 1)

	expired, err = s.ExpireTTL(ctx, time.Unix(0, 250))
	require.NoError(t, err)
	assert.Equal(t, []data.TTLData{{Label: 2}}, expired)

	expired, err = s.ExpireTTL(ctx, time.Unix(0, 1000))
	require.NoError(t, err)
	assert.Empty(t, expired)
	require.NoError(t, s.Close())

	// Expiry deletions are logged.
	s = openTestStore(t, dir, WithClock(clock))
	defer s.Close()
	assert.Equal(t, 1, s.Len())
	_, err = s.Get(3)
	assert.NoError(t, err)
	assert.Zero(t, s.Stats().PendingTTL)
}

func TestStore_ExpiryCleared(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1, ExpireNsTs: 100}))
	require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1}))

	expired, err := s.ExpireTTL(ctx, time.Unix(0, 1000))
	require.NoError(t, err)
	assert.Empty(t, expired)
	assert.Equal(t, 1, s.Len())
}

func TestStore_MemoryLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), WithResourceConfig(ResourceConfig{MemoryLimitBytes: 256}))
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1, Vector: make([]float32, 8)}))
	used := s.Stats().MemoryBytes
	assert.Positive(t, used)

	err := s.Upsert(ctx, data.CandidateData{Label: 2, Vector: make([]float32, 128)})
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, used, s.Stats().MemoryBytes)

	// Shrinking a row frees memory for others.
	require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1}))
	assert.Less(t, s.Stats().MemoryBytes, used)
}

func TestStore_WriteFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule(walFileName, fs.Fault{FailAfterBytes: 12})

	s := openTestStore(t, dir, WithFileSystem(faulty))
	err := s.Upsert(ctx, data.CandidateData{Label: 1, Vector: []float32{1}})
	assert.ErrorIs(t, err, fs.ErrInjected)

	_, err = s.Get(1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Stats().MemoryBytes)
	assert.Zero(t, s.Stats().LSN)
	s.Close()
}

func TestStore_SyncFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openTestStore(t, dir)
	require.NoError(t, s.Close())

	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule(walFileName, fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	s = openTestStore(t, dir, WithFileSystem(faulty))
	defer s.Close()

	err := s.Upsert(ctx, data.CandidateData{Label: 1})
	assert.ErrorIs(t, err, fs.ErrInjected)
	// The log is unusable after a failed fsync.
	assert.ErrorIs(t, s.Upsert(ctx, data.CandidateData{Label: 2}), fs.ErrInjected)
}

func TestStore_AsyncDurability(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openTestStore(t, dir, WithDurability(DurabilityAsync), WithWALCompressAbove(0))
	rng := testutil.NewRNG(5)
	cands := rng.Candidates(20, 64)
	for _, c := range cands {
		require.NoError(t, s.Upsert(ctx, c))
	}
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	s = openTestStore(t, dir)
	defer s.Close()
	got := collect(t, s)
	for _, c := range cands {
		assert.Equal(t, c, got[c.Label])
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)

	const (
		writers   = 8
		perWriter = 50
	)
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				label := uint64(w*perWriter + i)
				if err := s.Upsert(ctx, data.CandidateData{Label: label, Vector: []float32{float32(i)}}); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	// Snapshots may run alongside writers.
	for range 3 {
		_, err := s.Snapshot(ctx)
		require.NoError(t, err)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	assert.Equal(t, writers*perWriter, s.Len())
	assert.Equal(t, uint64(writers*perWriter), s.Stats().LSN)
	require.NoError(t, s.Close())

	s = openTestStore(t, dir)
	defer s.Close()
	assert.Equal(t, writers*perWriter, s.Len())
}

func TestStore_Metrics(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	s := openTestStore(t, t.TempDir(), WithMetricsCollector(metrics), WithLogger(nil))
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 1, ExpireNsTs: 10}))
	require.NoError(t, s.Upsert(ctx, data.CandidateData{Label: 2}))
	assert.Error(t, s.Upsert(ctx, data.CandidateData{SparseValues: []float32{1}}))
	_, _ = s.Get(2)
	_, _ = s.Get(99)
	assert.ErrorIs(t, s.Delete(ctx, 99), ErrNotFound)
	_, err := s.ExpireTTL(ctx, time.Unix(0, 20))
	require.NoError(t, err)
	_, err = s.Snapshot(ctx)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.UpsertCount)
	assert.Equal(t, int64(1), stats.UpsertErrors)
	assert.Equal(t, int64(2), stats.GetCount)
	assert.Equal(t, int64(1), stats.GetMisses)
	assert.Equal(t, int64(1), stats.DeleteCount)
	assert.Equal(t, int64(1), stats.DeleteErrors)
	assert.Equal(t, int64(1), stats.ExpireSweeps)
	assert.Equal(t, int64(1), stats.ExpiredRows)
	assert.Equal(t, int64(1), stats.SnapshotCount)
	assert.Equal(t, int64(1), stats.SnapshotRows)
	assert.Positive(t, stats.SnapshotBytes)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("CommitStoreLoad", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Open(ctx, t.TempDir(), WithCommitStore(loadFailing{err: boom}))
		var target *ErrRecovery
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "snapshot", target.Stage)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("BadLogHeader", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, walFileName), []byte("not a delta log"), 0o644))
		_, err := Open(ctx, dir)
		var target *ErrRecovery
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "wal", target.Stage)
	})
}

type loadFailing struct {
	blobstore.CommitStore
	err error
}

func (l loadFailing) Load(context.Context) (blobstore.Pointer, error) {
	return blobstore.Pointer{}, l.err
}
