package minio

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knnlm/blobstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	endpoint := os.Getenv("KNNLM_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("KNNLM_MINIO_ENDPOINT not set")
	}
	access := os.Getenv("KNNLM_MINIO_ACCESS_KEY")
	secret := os.Getenv("KNNLM_MINIO_SECRET_KEY")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: false,
	})
	require.NoError(t, err)

	store := NewStore(client, "knnlm-test", t.Name()+"/")
	require.NoError(t, store.EnsureBucket(context.Background()))
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a_knns.npy1.0", []byte("hello world")))

	w, err := store.Create(ctx, "b_dists.npy1.0")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_knns.npy1.0", "b_dists.npy1.0"}, names)

	blob, err := store.Open(ctx, "a_knns.npy1.0")
	require.NoError(t, err)
	defer blob.Close()
	assert.Equal(t, int64(11), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	rc, err := blob.ReadRange(ctx, 2, 3)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "llo", string(got))

	require.NoError(t, store.Delete(ctx, "a_knns.npy1.0"))
	require.NoError(t, store.Delete(ctx, "b_dists.npy1.0"))
	require.NoError(t, store.Delete(ctx, "missing"))

	_, err = store.Open(ctx, "a_knns.npy1.0")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
