package rowstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/openviking/rowstore/blobstore"
	"github.com/openviking/rowstore/data"
	"github.com/openviking/rowstore/internal/resource"
	"github.com/openviking/rowstore/internal/snapshot"
	"github.com/openviking/rowstore/internal/ttl"
	"github.com/openviking/rowstore/internal/wal"
)

const (
	walFileName = "delta.wal"
	blobDirName = "blobs"
)

// Store is an embedded table of candidate rows keyed by label.
//
// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	rows   map[uint64][]byte // serialized CandidateData, never modified in place
	lsn    uint64
	ptr    blobstore.Pointer
	closed bool

	snapMu sync.Mutex // serializes Snapshot

	dir     string
	opts    options
	wal     *wal.WAL
	ttl     *ttl.Index
	blobs   blobstore.Store
	commits blobstore.CommitStore
	res     *resource.Controller
	logger  *Logger
	metrics MetricsCollector
}

// Stats describes the state of a Store.
type Stats struct {
	Rows        int
	PendingTTL  int    // rows with an expiry
	LSN         uint64 // last applied delta
	WALBytes    int64
	MemoryBytes int64
	Generation  uint64 // of the current snapshot, 0 if none
	Snapshot    string
}

// Open opens the store in dir, creating it if needed. The table is restored
// from the current snapshot and the delta log entries written after it.
func Open(ctx context.Context, dir string, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)

	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	blobs := o.blobStore
	if blobs == nil {
		blobs = blobstore.NewLocalStore(filepath.Join(dir, blobDirName))
	}
	commits := o.commitStore
	if commits == nil {
		commits = blobstore.NewBlobCommitStore(blobs)
	}

	s := &Store{
		rows:    make(map[uint64][]byte),
		dir:     dir,
		opts:    o,
		ttl:     ttl.New(o.ttlGranularity),
		blobs:   blobs,
		commits: commits,
		res:     resource.NewController(o.resources),
		logger:  o.logger.WithDir(dir),
		metrics: o.metricsCollector,
	}

	snapshotRows, err := s.loadSnapshot(ctx)
	if err != nil {
		s.logger.LogRecovery(ctx, snapshotRows, 0, err)
		s.res.ReleaseMemory(s.res.MemoryUsage())
		return nil, err
	}

	w, err := wal.Open(o.fs, filepath.Join(dir, walFileName), wal.Options{
		Durability:    o.durability,
		CompressAbove: o.walCompressAbove,
	})
	if err != nil {
		s.res.ReleaseMemory(s.res.MemoryUsage())
		return nil, &ErrRecovery{Stage: "wal", cause: err}
	}
	s.wal = w

	replayed, err := w.Replay(func(rec wal.Record) error {
		if rec.LSN <= s.lsn {
			// Already folded into the snapshot.
			return nil
		}
		s.lsn = rec.LSN
		return s.applyLocked(&rec.Delta, rec.ExpireNs)
	})
	s.logger.LogRecovery(ctx, snapshotRows, replayed, err)
	if err != nil {
		w.Close()
		s.res.ReleaseMemory(s.res.MemoryUsage())
		return nil, &ErrRecovery{Stage: "wal", cause: err}
	}
	return s, nil
}

func (s *Store) loadSnapshot(ctx context.Context) (int, error) {
	ptr, err := s.commits.Load(ctx)
	if err != nil {
		return 0, &ErrRecovery{Stage: "snapshot", cause: err}
	}
	s.ptr = ptr
	if ptr.IsZero() {
		return 0, nil
	}

	n := 0
	h, err := snapshot.Read(ctx, s.blobs, ptr.Snapshot, func(row []byte) error {
		c, err := data.CandidateFromBytes(row)
		if err != nil {
			return err
		}
		n++
		// row may point into a mapped blob.
		return s.putLocked(c.Label, slices.Clone(row), c.ExpireNsTs)
	})
	if err != nil {
		return n, &ErrRecovery{Stage: "snapshot", cause: err}
	}
	s.lsn = max(h.LSN, ptr.LSN)
	return n, nil
}

// putLocked installs row for label and accounts for its memory.
func (s *Store) putLocked(label uint64, row []byte, expireNs uint64) error {
	old := s.rows[label]
	if err := s.res.ResizeMemory(int64(len(old)), int64(len(row))); err != nil {
		return err
	}
	s.rows[label] = row
	s.ttl.Set(label, expireNs)
	return nil
}

func (s *Store) removeLocked(label uint64) {
	if old, ok := s.rows[label]; ok {
		s.res.ReleaseMemory(int64(len(old)))
		delete(s.rows, label)
	}
	s.ttl.Remove(label)
}

// applyLocked applies a replayed delta.
func (s *Store) applyLocked(d *data.DeltaRecord, expireNs uint64) error {
	switch d.Type {
	case data.DeltaUpsert:
		c := d.Candidate(expireNs)
		row, err := c.Serialize()
		if err != nil {
			return err
		}
		return s.putLocked(d.Label, row, expireNs)
	case data.DeltaDelete:
		s.removeLocked(d.Label)
		return nil
	default:
		return fmt.Errorf("unknown delta type %v", d.Type)
	}
}

func (s *Store) now() time.Time {
	return s.opts.clock()
}

// Upsert inserts c or replaces the row with the same label.
func (s *Store) Upsert(ctx context.Context, c data.CandidateData) error {
	start := time.Now()
	lsn, err := s.upsert(ctx, &c)
	s.metrics.RecordUpsert(time.Since(start), err)
	s.logger.LogUpsert(ctx, c.Label, lsn, err)
	return err
}

func (s *Store) upsert(ctx context.Context, c *data.CandidateData) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(c.SparseRawTerms) != len(c.SparseValues) {
		return 0, &ErrSparseLengthMismatch{Label: c.Label, Terms: len(c.SparseRawTerms), Values: len(c.SparseValues)}
	}
	row, err := c.Serialize()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}

	old := s.rows[c.Label]
	var oldFields string
	if old != nil {
		prev, err := data.CandidateFromBytes(old)
		if err != nil {
			s.mu.Unlock()
			return 0, fmt.Errorf("decode row %d: %w", c.Label, err)
		}
		oldFields = prev.Fields
	}

	grow := int64(len(row)) - int64(len(old))
	if grow > 0 {
		if err := s.res.AcquireMemory(grow); err != nil {
			s.mu.Unlock()
			return 0, err
		}
	}

	lsn := s.lsn + 1
	rec := wal.Record{LSN: lsn, Delta: c.Delta(oldFields), ExpireNs: c.ExpireNsTs}
	offset, err := s.wal.AppendAsync(&rec)
	if err != nil {
		if grow > 0 {
			s.res.ReleaseMemory(grow)
		}
		s.mu.Unlock()
		return 0, err
	}
	if grow < 0 {
		s.res.ReleaseMemory(-grow)
	}
	s.lsn = lsn
	s.rows[c.Label] = row
	s.ttl.Set(c.Label, c.ExpireNsTs)
	s.mu.Unlock()

	return lsn, s.waitDurable(offset)
}

func (s *Store) waitDurable(offset int64) error {
	if s.opts.durability != DurabilitySync {
		return nil
	}
	return s.wal.WaitFor(offset)
}

// Delete removes the row of label. It returns ErrNotFound when there is
// none.
func (s *Store) Delete(ctx context.Context, label uint64) error {
	start := time.Now()
	lsn, err := s.delete(ctx, label)
	s.metrics.RecordDelete(time.Since(start), err)
	if !errors.Is(err, ErrNotFound) {
		s.logger.LogDelete(ctx, label, lsn, err)
	}
	return err
}

func (s *Store) delete(ctx context.Context, label uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	lsn, offset, err := s.logDeleteLocked(label)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return lsn, s.waitDurable(offset)
}

// logDeleteLocked logs and applies the deletion of label.
func (s *Store) logDeleteLocked(label uint64) (uint64, int64, error) {
	old, ok := s.rows[label]
	if !ok {
		return 0, 0, ErrNotFound
	}
	prev, err := data.CandidateFromBytes(old)
	if err != nil {
		return 0, 0, fmt.Errorf("decode row %d: %w", label, err)
	}

	lsn := s.lsn + 1
	rec := wal.Record{LSN: lsn, Delta: data.NewDeleteDelta(label, prev.Fields)}
	offset, err := s.wal.AppendAsync(&rec)
	if err != nil {
		return 0, 0, err
	}
	s.lsn = lsn
	s.removeLocked(label)
	return lsn, offset, nil
}

// Get returns the row of label. Rows past their expiry are reported as
// ErrNotFound even before ExpireTTL removed them.
func (s *Store) Get(label uint64) (data.CandidateData, error) {
	start := time.Now()
	c, err := s.get(label)
	s.metrics.RecordGet(err == nil, time.Since(start))
	return c, err
}

func (s *Store) get(label uint64) (data.CandidateData, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return data.CandidateData{}, ErrClosed
	}
	row, ok := s.rows[label]
	s.mu.RUnlock()
	if !ok {
		return data.CandidateData{}, ErrNotFound
	}

	c, err := data.CandidateFromBytes(row)
	if err != nil {
		return data.CandidateData{}, fmt.Errorf("decode row %d: %w", label, err)
	}
	if c.Expired(s.now()) {
		return data.CandidateData{}, ErrNotFound
	}
	return c, nil
}

// GetRow returns a copy of the serialized row of label, expired or not.
func (s *Store) GetRow(label uint64) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[label]
	if !ok {
		return nil, false
	}
	return slices.Clone(row), true
}

// Len returns the number of rows, including expired rows not yet swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Range calls fn for every live row in ascending label order until fn
// returns false. It iterates over the rows present when it was called.
func (s *Store) Range(fn func(c data.CandidateData) bool) error {
	labels, rows, _, err := s.capture()
	if err != nil {
		return err
	}
	now := s.now()
	for i, row := range rows {
		c, err := data.CandidateFromBytes(row)
		if err != nil {
			return fmt.Errorf("decode row %d: %w", labels[i], err)
		}
		if c.Expired(now) {
			continue
		}
		if !fn(c) {
			return nil
		}
	}
	return nil
}

// capture returns the rows in label order with the LSN they reflect.
func (s *Store) capture() ([]uint64, [][]byte, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, 0, ErrClosed
	}
	labels := slices.Sorted(maps.Keys(s.rows))
	rows := make([][]byte, len(labels))
	for i, label := range labels {
		rows[i] = s.rows[label]
	}
	return labels, rows, s.lsn, nil
}

// ExpireTTL deletes every row whose expiry is at or before now and returns
// their markers in ascending label order. Each removal is logged like a
// Delete.
func (s *Store) ExpireTTL(ctx context.Context, now time.Time) ([]data.TTLData, error) {
	start := time.Now()
	expired, err := s.expire(ctx, now)
	s.metrics.RecordExpire(len(expired), time.Since(start))
	s.logger.LogExpire(ctx, len(expired), err)
	return expired, err
}

func (s *Store) expire(ctx context.Context, now time.Time) ([]data.TTLData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	due := s.ttl.Expired(uint64(now.UnixNano()))
	expired := make([]data.TTLData, 0, len(due))
	var offset int64
	for i, t := range due {
		_, off, err := s.logDeleteLocked(t.Label)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			// Keep the rest due for the next sweep.
			s.restoreTTLLocked(due[i:])
			s.mu.Unlock()
			return expired, err
		}
		offset = off
		expired = append(expired, t)
	}
	s.mu.Unlock()

	if len(expired) == 0 {
		return nil, nil
	}
	return expired, s.waitDurable(offset)
}

func (s *Store) restoreTTLLocked(markers []data.TTLData) {
	for _, t := range markers {
		row, ok := s.rows[t.Label]
		if !ok {
			continue
		}
		if c, err := data.CandidateFromBytes(row); err == nil {
			s.ttl.Set(t.Label, c.ExpireNsTs)
		}
	}
}

// Snapshot writes the table to the blob store, publishes it as the current
// snapshot and truncates the delta log. It returns the new pointer.
func (s *Store) Snapshot(ctx context.Context) (blobstore.Pointer, error) {
	start := time.Now()
	ptr, size, err := s.snapshot(ctx)
	s.metrics.RecordSnapshot(ptr.Rows, size, time.Since(start), err)
	s.logger.LogSnapshot(ctx, ptr.Snapshot, ptr.Rows, size, err)
	return ptr, err
}

func (s *Store) snapshot(ctx context.Context) (blobstore.Pointer, int, error) {
	if err := s.res.AcquireBackground(ctx); err != nil {
		return blobstore.Pointer{}, 0, err
	}
	defer s.res.ReleaseBackground()

	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	_, rows, lsn, err := s.capture()
	if err != nil {
		return blobstore.Pointer{}, 0, err
	}
	s.mu.RLock()
	prev := s.ptr
	s.mu.RUnlock()

	gen := prev.Generation + 1
	next := blobstore.Pointer{
		Generation: gen,
		Snapshot:   snapshot.NewName(gen),
		LSN:        lsn,
		Rows:       len(rows),
		CreatedAt:  s.now().UTC(),
	}

	info, err := snapshot.Write(ctx, s.blobs, next.Snapshot, lsn, rows, snapshot.Options{
		Compression: s.opts.compression,
		BlockSize:   s.opts.snapshotBlockSize,
		Concurrency: snapshot.DefaultOptions().Concurrency,
		Resources:   s.res,
		CreatedAt:   next.CreatedAt,
	})
	if err != nil {
		return blobstore.Pointer{}, 0, err
	}

	if err := s.commits.Commit(ctx, prev, next); err != nil {
		s.discardSnapshot(ctx, next.Snapshot)
		return blobstore.Pointer{}, 0, fmt.Errorf("commit snapshot: %w", err)
	}

	s.mu.Lock()
	s.ptr = next
	var resetErr error
	if s.lsn == lsn && !s.closed {
		// Entries appended since the capture stay in the log and are
		// replayed on top of the snapshot.
		resetErr = s.wal.Reset()
	}
	s.mu.Unlock()
	if resetErr != nil {
		return next, info.Size, fmt.Errorf("truncate delta log: %w", resetErr)
	}

	if removed, err := snapshot.Cleanup(ctx, s.blobs, next.Generation); err != nil {
		s.logger.WarnContext(ctx, "snapshot cleanup failed", "error", err)
	} else if removed > 0 {
		s.logger.DebugContext(ctx, "removed old snapshots", "count", removed)
	}
	return next, info.Size, nil
}

// discardSnapshot removes a blob whose commit failed, unless the commit
// store reports it as current anyway.
func (s *Store) discardSnapshot(ctx context.Context, name string) {
	cur, err := s.commits.Load(ctx)
	if err == nil && cur.Snapshot == name {
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "keeping uncommitted snapshot", "snapshot", name, "error", err)
		return
	}
	if err := s.blobs.Delete(ctx, name); err != nil {
		s.logger.WarnContext(ctx, "failed to remove uncommitted snapshot",
			"snapshot", name,
			"error", err,
		)
	}
}

// Sync commits every logged delta to stable storage. It is only needed
// with DurabilityAsync.
func (s *Store) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.wal.Sync()
}

// Stats returns a summary of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Rows:        len(s.rows),
		PendingTTL:  s.ttl.Len(),
		LSN:         s.lsn,
		MemoryBytes: s.res.MemoryUsage(),
		Generation:  s.ptr.Generation,
		Snapshot:    s.ptr.Snapshot,
	}
	if !s.closed {
		st.WALBytes = s.wal.Size()
	}
	return st
}

// Close flushes the delta log and releases the store. Unsnapshotted
// changes remain in the log and are replayed by the next Open.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.res.ReleaseMemory(s.res.MemoryUsage())
	if err := s.wal.Close(); err != nil {
		return fmt.Errorf("close delta log: %w", err)
	}
	return nil
}
