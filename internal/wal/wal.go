package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/openviking/rowstore/internal/fs"
)

// Durability controls when appended records reach stable storage.
type Durability int

const (
	// DurabilityAsync leaves flushing to the OS page cache.
	DurabilityAsync Durability = iota
	// DurabilitySync waits for fsync before Append returns. Concurrent
	// appenders share one fsync (group commit).
	DurabilitySync
)

func (d Durability) String() string {
	switch d {
	case DurabilityAsync:
		return "async"
	case DurabilitySync:
		return "sync"
	default:
		return fmt.Sprintf("Durability(%d)", int(d))
	}
}

const (
	walMagic      = "ROWDELTA" // 8 bytes
	walVersion    = 1          // 4 bytes
	walHeaderSize = 12
)

var (
	ErrIncompatibleVersion = errors.New("incompatible WAL version")
	ErrInvalidHeader       = errors.New("invalid WAL header")
)

// Options configures a WAL.
type Options struct {
	Durability Durability
	// CompressAbove is the payload size from which frames are zstd-compressed.
	// Negative disables compression.
	CompressAbove int
}

// DefaultOptions returns sync durability with compression disabled.
func DefaultOptions() Options {
	return Options{Durability: DurabilitySync, CompressAbove: -1}
}

// WAL is an append-only log of delta records.
type WAL struct {
	mu   sync.Mutex
	fs   fs.FileSystem
	file fs.File
	cw   *countingWriter
	path string
	opts Options
	buf  []byte

	// group commit
	syncedOffset int64
	discarded    int64 // bytes dropped by Reset; offsets handed out are logical
	syncing      bool
	syncCond     *sync.Cond // data waiting for the syncer
	doneCond     *sync.Cond // a sync finished
	closed       bool
	lastErr      error // terminal syncer error
	wg           sync.WaitGroup
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// Open opens the WAL at path, creating it with a fresh header if missing.
func Open(fsys fs.FileSystem, path string, opts Options) (*WAL, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	offset, err := checkHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &WAL{
		fs:           fsys,
		file:         f,
		cw:           &countingWriter{w: bufio.NewWriter(f), n: offset},
		path:         path,
		opts:         opts,
		syncedOffset: offset,
	}
	w.syncCond = sync.NewCond(&w.mu)
	w.doneCond = sync.NewCond(&w.mu)

	if opts.Durability == DurabilitySync {
		w.wg.Add(1)
		go w.runSyncer()
	}
	return w, nil
}

// checkHeader validates the header of an existing log or writes the header
// of an empty one. It returns the file size.
func checkHeader(f fs.File) (int64, error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := stat.Size()

	if size == 0 {
		header := make([]byte, walHeaderSize)
		copy(header, walMagic)
		binary.LittleEndian.PutUint32(header[8:], walVersion)
		if _, err := f.Write(header); err != nil {
			return 0, err
		}
		if err := f.Sync(); err != nil {
			return 0, err
		}
		return walHeaderSize, nil
	}

	if size < walHeaderSize {
		return 0, fmt.Errorf("%w: file too small (%d < %d)", ErrInvalidHeader, size, walHeaderSize)
	}
	header := make([]byte, walHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return 0, err
	}
	if string(header[:8]) != walMagic {
		return 0, fmt.Errorf("%w: invalid magic %q", ErrInvalidHeader, header[:8])
	}
	if ver := binary.LittleEndian.Uint32(header[8:]); ver != walVersion {
		return 0, fmt.Errorf("%w: version %d (expected %d)", ErrIncompatibleVersion, ver, walVersion)
	}
	return size, nil
}

// Path returns the log file path.
func (w *WAL) Path() string { return w.path }

// Size returns the size of the log in bytes, header included.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cw.n
}

func (w *WAL) runSyncer() {
	defer w.wg.Done()
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		for w.cw.n <= w.syncedOffset && !w.closed {
			w.syncCond.Wait()
		}
		if w.closed && w.cw.n <= w.syncedOffset {
			return
		}

		target := w.cw.n
		w.syncing = true
		w.mu.Unlock()
		err := w.file.Sync()
		w.mu.Lock()
		w.syncing = false

		if err != nil {
			w.lastErr = fmt.Errorf("wal sync failed: %w", err)
			w.doneCond.Broadcast()
			return
		}
		if target > w.syncedOffset {
			w.syncedOffset = target
		}
		w.doneCond.Broadcast()
	}
}

// Append writes rec, waiting for fsync under DurabilitySync.
func (w *WAL) Append(rec *Record) error {
	offset, err := w.AppendAsync(rec)
	if err != nil {
		return err
	}
	if w.opts.Durability == DurabilitySync {
		return w.WaitFor(offset)
	}
	return nil
}

// AppendAsync writes rec to the file without waiting for fsync and returns
// the logical log offset at the end of its frame, for use with WaitFor.
func (w *WAL) AppendAsync(rec *Record) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	if w.lastErr != nil {
		return 0, w.lastErr
	}

	frame, err := rec.AppendFrame(w.buf[:0], w.opts.CompressAbove)
	if err != nil {
		return 0, err
	}
	w.buf = frame

	if _, err := w.cw.Write(frame); err != nil {
		return 0, err
	}
	if err := w.cw.w.Flush(); err != nil {
		return 0, err
	}

	if w.opts.Durability == DurabilitySync {
		w.syncCond.Signal()
	}
	return w.discarded + w.cw.n, nil
}

// WaitFor blocks until the log is synced up to offset.
func (w *WAL) WaitFor(offset int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.discarded+w.syncedOffset < offset && !w.closed && w.lastErr == nil {
		w.doneCond.Wait()
	}
	if w.lastErr != nil {
		return w.lastErr
	}
	if w.closed && w.discarded+w.syncedOffset < offset {
		return os.ErrClosed
	}
	return nil
}

// Sync commits every appended record to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if w.lastErr != nil {
		return w.lastErr
	}
	if err := w.cw.w.Flush(); err != nil {
		return err
	}

	if w.opts.Durability == DurabilityAsync {
		return w.file.Sync()
	}

	target := w.discarded + w.cw.n
	w.syncCond.Signal()
	for w.discarded+w.syncedOffset < target && !w.closed && w.lastErr == nil {
		w.doneCond.Wait()
	}
	if w.lastErr != nil {
		return w.lastErr
	}
	if w.closed && w.discarded+w.syncedOffset < target {
		return os.ErrClosed
	}
	return nil
}

// Reset discards every record, leaving an empty log. It is called once the
// records are covered by a snapshot.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if w.lastErr != nil {
		return w.lastErr
	}
	// An in-flight fsync would publish a pre-reset offset.
	for w.syncing {
		w.doneCond.Wait()
	}
	if err := w.cw.w.Flush(); err != nil {
		return err
	}
	// Dropped frames are covered by a snapshot, so their waiters are done.
	n := w.cw.n
	if err := w.truncateLocked(walHeaderSize); err != nil {
		return err
	}
	w.discarded += n - walHeaderSize
	w.doneCond.Broadcast()
	return nil
}

func (w *WAL) truncateLocked(size int64) error {
	if err := w.file.Truncate(size); err != nil {
		return fmt.Errorf("wal truncate: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal sync: %w", err)
	}
	w.cw.n = size
	w.syncedOffset = size
	return nil
}

// Replay calls fn for every record in log order and returns how many
// records it read.
//
// A frame cut short at the end of the log is the trace of a crash during
// append: Replay truncates it away and returns normally. A checksum mismatch
// on the last frame is treated the same way; anywhere else it is corruption
// and is returned as ErrInvalidCRC. Replay must run before the first append.
func (w *WAL) Replay(fn func(Record) error) (int, error) {
	r, err := w.Reader()
	if err != nil {
		return 0, err
	}
	defer r.Close()

	size := w.Size()
	count := 0
	for {
		rec, err := r.Next()
		switch {
		case err == nil:
			if err := fn(rec); err != nil {
				return count, err
			}
			count++
			continue
		case errors.Is(err, io.EOF):
			return count, nil
		case errors.Is(err, io.ErrUnexpectedEOF),
			errors.Is(err, ErrInvalidCRC) && r.Offset()+r.lastSize >= size:
			w.mu.Lock()
			defer w.mu.Unlock()
			return count, w.truncateLocked(r.Offset())
		default:
			return count, fmt.Errorf("wal replay at offset %d: %w", r.Offset(), err)
		}
	}
}

// Close flushes and closes the log.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return os.ErrClosed
	}
	if err := w.cw.w.Flush(); err != nil {
		w.closed = true
		w.syncCond.Signal()
		w.mu.Unlock()
		w.wg.Wait()
		w.file.Close()
		return err
	}
	w.closed = true
	w.syncCond.Signal()
	w.mu.Unlock()

	w.wg.Wait()
	return w.file.Close()
}

// Reader returns a reader over the records currently in the log. The
// caller must close it.
func (w *WAL) Reader() (*Reader, error) {
	f, err := w.fs.OpenFile(w.path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(walHeaderSize, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, r: bufio.NewReader(f), offset: walHeaderSize}, nil
}

// Reader iterates over WAL records.
type Reader struct {
	f        fs.File
	r        *bufio.Reader
	offset   int64
	lastSize int64
}

// Next reads the next record. It returns io.EOF at the end of the log.
func (r *Reader) Next() (Record, error) {
	rec, n, err := Decode(r.r)
	r.lastSize = n
	if err == nil {
		r.offset += n
	}
	return rec, err
}

// Offset returns the offset just past the last record read successfully.
func (r *Reader) Offset() int64 { return r.offset }

// Close closes the reader.
func (r *Reader) Close() error { return r.f.Close() }
