// Package blobstore stores snapshot blobs and the pointer naming the live
// snapshot.
//
// Store is the interface for immutable blobs. Implementations must be safe
// for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and ephemeral stores
//   - LocalStore: local directory; atomic Put, mmap reads
//   - s3.Store: Amazon S3 with ranged reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Snapshot Pointer
//
// A CommitStore publishes the Pointer to the current snapshot. Commits are
// compare-and-swap on Pointer.Generation:
//
//	prev, _ := commits.Load(ctx)
//	next := blobstore.Pointer{Generation: prev.Generation + 1, Snapshot: name}
//	err := commits.Commit(ctx, prev, next) // ErrConcurrentModification on a lost race
//
// BlobCommitStore keeps the pointer in a JSON blob next to the snapshots.
// s3.DDBCommitStore uses DynamoDB conditional writes for multi-writer setups.
package blobstore
