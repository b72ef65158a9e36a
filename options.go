package rowstore

import (
	"log/slog"
	"time"

	"github.com/openviking/rowstore/blobstore"
	"github.com/openviking/rowstore/internal/compress"
	"github.com/openviking/rowstore/internal/fs"
	"github.com/openviking/rowstore/internal/resource"
	"github.com/openviking/rowstore/internal/ttl"
	"github.com/openviking/rowstore/internal/wal"
)

// Durability controls when Upsert and Delete return relative to fsync.
type Durability = wal.Durability

const (
	// DurabilityAsync returns once the delta reached the OS.
	DurabilityAsync = wal.DurabilityAsync
	// DurabilitySync returns once the delta is on stable storage.
	DurabilitySync = wal.DurabilitySync
)

// Compression selects the snapshot block compression.
type Compression = compress.Type

const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

// ResourceConfig bounds memory, background work and snapshot IO.
type ResourceConfig = resource.Config

// FileSystem abstracts the file operations on the store directory.
type FileSystem = fs.FileSystem

type options struct {
	metricsCollector  MetricsCollector
	logger            *Logger
	blobStore         blobstore.Store
	commitStore       blobstore.CommitStore
	durability        Durability
	walCompressAbove  int
	compression       Compression
	snapshotBlockSize int
	ttlGranularity    time.Duration
	resources         ResourceConfig
	fs                FileSystem
	clock             func() time.Time
}

// Option configures Open.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &rowstore.BasicMetricsCollector{}
//	st, _ := rowstore.Open(ctx, dir, rowstore.WithMetricsCollector(metrics))
//	// ... use st ...
//	stats := metrics.GetStats()
//	fmt.Printf("Upserts: %d, Avg latency: %dns\n", stats.UpsertCount, stats.UpsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := rowstore.NewJSONLogger(slog.LevelInfo)
//	st, _ := rowstore.Open(ctx, dir, rowstore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithBlobStore sets where snapshots are written. By default they go to a
// LocalStore under <dir>/blobs.
//
// Example with S3:
//
//	blobs, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("rows/"))
//	st, _ := rowstore.Open(ctx, dir, rowstore.WithBlobStore(blobs))
func WithBlobStore(s blobstore.Store) Option {
	return func(o *options) {
		o.blobStore = s
	}
}

// WithCommitStore sets where the current snapshot pointer is published.
// By default a BlobCommitStore in the snapshot blob store is used.
func WithCommitStore(c blobstore.CommitStore) Option {
	return func(o *options) {
		o.commitStore = c
	}
}

// WithDurability sets the delta log durability. The default is
// DurabilitySync.
func WithDurability(d Durability) Option {
	return func(o *options) {
		o.durability = d
	}
}

// WithWALCompressAbove zstd-compresses delta log payloads of at least n
// bytes. Negative disables compression, which is the default.
func WithWALCompressAbove(n int) Option {
	return func(o *options) {
		o.walCompressAbove = n
	}
}

// WithCompression sets the snapshot block compression. The default is LZ4.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithSnapshotBlockSize sets the target uncompressed snapshot block size.
func WithSnapshotBlockSize(n int) Option {
	return func(o *options) {
		o.snapshotBlockSize = n
	}
}

// WithTTLGranularity sets the bucket width of the expiry index. Expiries
// within one bucket share a bitmap; sweeps stay exact.
func WithTTLGranularity(d time.Duration) Option {
	return func(o *options) {
		o.ttlGranularity = d
	}
}

// WithResourceConfig bounds the store's memory and snapshot IO.
func WithResourceConfig(cfg ResourceConfig) Option {
	return func(o *options) {
		o.resources = cfg
	}
}

// WithFileSystem replaces the file system used for the store directory.
// Mostly useful for fault injection in tests.
func WithFileSystem(fsys FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithClock replaces time.Now for expiry checks and snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector:  NoopMetricsCollector{},
		logger:            NoopLogger(),
		durability:        DurabilitySync,
		walCompressAbove:  -1,
		compression:       CompressionLZ4,
		snapshotBlockSize: 64 * 1024,
		ttlGranularity:    ttl.DefaultGranularity,
		fs:                fs.Default,
		clock:             time.Now,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.fs == nil {
		o.fs = fs.Default
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}
