//go:build integration

package minio

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"

	"github.com/pure-golang/bulkmail/storage"
)

func TestMinioStorage(t *testing.T) {
	ctx := context.Background()

	container, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := Connect(ctx, Config{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	}, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.client.Minio().MakeBucket(ctx, "assets", minio.MakeBucketOptions{}))

	content := "%PDF-1.4 flyer"
	require.NoError(t, s.Put(ctx, "assets", "promo/flyer.pdf", strings.NewReader(content), int64(len(content)),
		&storage.PutOptions{ContentType: "application/pdf"}))

	rc, info, err := s.Get(ctx, "assets", "promo/flyer.pdf")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)

	_, _, err = s.Get(ctx, "assets", "missing.pdf")
	assert.True(t, storage.IsNotFound(err))
	_, _, err = s.Get(ctx, "nope", "x")
	assert.ErrorIs(t, err, storage.ErrBucketNotFound)
}
