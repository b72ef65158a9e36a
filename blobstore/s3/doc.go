// Package s3 provides an Amazon S3 implementation of blobstore.Store and a
// DynamoDB-backed blobstore.CommitStore.
//
// # Usage
//
//	blobs, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("rowstore/"),
//	    s3.WithRegion("us-east-1"),
//	)
//	commits := s3.NewDDBCommitStore(dynamodb.NewFromConfig(cfg), "rowstore-commits", blobs.URI())
//
//	st, err := rowstore.Open(ctx, dir,
//	    rowstore.WithBlobStore(blobs),
//	    rowstore.WithCommitStore(commits),
//	)
//
// # Features
//
//   - Ranged GETs for partial reads
//   - CRC32C-checked single PUTs, multipart uploads for large snapshots
//   - Automatic pagination for listing
//   - Conditional DynamoDB writes for multi-writer pointer commits
package s3
