// Package rowstore provides an embedded store of vector-database candidate
// rows.
//
// Rows are CandidateData records serialized with the schema-derived binary
// codec of package rowcodec. Every change is appended to a delta log of
// DeltaRecord rows before it is applied to the in-memory table, and
// snapshots of the table are written to a blob store: local disk, MinIO or
// S3.
//
// # Quick Start
//
//	ctx := context.Background()
//	st, _ := rowstore.Open(ctx, "./data")
//	defer st.Close()
//
//	_ = st.Upsert(ctx, data.CandidateData{Label: 1, Vector: []float32{0.1, 0.2}})
//	c, _ := st.Get(1)
//
// # Expiry
//
// A candidate with a non-zero ExpireNsTs stops being visible once that time
// has passed. ExpireTTL removes due rows, logs their deletion and returns
// their TTLData markers:
//
//	expired, _ := st.ExpireTTL(ctx, time.Now())
//
// # Durability
//
// With DurabilitySync (the default) Upsert and Delete return after the
// delta log was fsynced; concurrent writers share one fsync. Snapshot
// writes the table to the blob store, publishes it through the
// CommitStore and truncates the delta log. Open restores the current
// snapshot and replays newer log entries.
//
// Cloud mode:
//
//	blobs, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("rows/"))
//	commits := s3.NewDDBCommitStore(ddb, "rowstore-pointers", blobs.URI())
//	st, _ := rowstore.Open(ctx, "./data",
//	    rowstore.WithBlobStore(blobs),
//	    rowstore.WithCommitStore(commits),
//	)
package rowstore
