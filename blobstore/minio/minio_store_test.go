package minio

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/openviking/rowstore/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_KeyMapping(t *testing.T) {
	s := NewStore(nil, "bucket", "rowstore/")
	assert.Equal(t, "rowstore/snapshots/1.snap", s.key("snapshots/1.snap"))
	assert.Equal(t, "snapshots/1.snap", s.name("rowstore/snapshots/1.snap"))

	bare := NewStore(nil, "bucket", "")
	assert.Equal(t, "CURRENT", bare.key("CURRENT"))
	assert.Equal(t, "CURRENT", bare.name("CURRENT"))
}

// TestStore_Integration needs a MinIO server at $ROWSTORE_MINIO_ENDPOINT.
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("ROWSTORE_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("ROWSTORE_MINIO_ENDPOINT not set")
	}
	const bucket = "rowstore-test"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "it/")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.bin", data))

	blob, err := store.Open(ctx, "test.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(buf[:n]))

	n, err = blob.ReadAt(ctx, make([]byte, 10), 12)
	assert.Equal(t, 5, n)
	assert.Equal(t, io.EOF, err)
	require.NoError(t, blob.Close())

	got, err := blobstore.ReadAll(ctx, store, "test.bin")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.bin")

	commits := blobstore.NewBlobCommitStore(store)
	prev, err := commits.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, commits.Commit(ctx, prev, blobstore.Pointer{Generation: prev.Generation + 1, Snapshot: "test.bin"}))

	require.NoError(t, store.Delete(ctx, "test.bin"))
	require.NoError(t, store.Delete(ctx, blobstore.CurrentName))
	_, err = store.Open(ctx, "test.bin")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
