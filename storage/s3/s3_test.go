package s3

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-event-hubs-processor-go/internal/test"
	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	_, err := New(Options{Bucket: "checkpoints"})
	assert.Error(t, err)

	_, err = New(Options{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	p, err := New(Options{Endpoint: "localhost:9000", Bucket: "checkpoints", Prefix: "eph"})
	require.NoError(t, err)
	assert.Equal(t, "eph/ns/hub/$Default/3", p.objectName("ns", "hub", "$Default", "3"))

	p.prefix = ""
	assert.Equal(t, "ns/hub/$Default/3", p.objectName("ns", "hub", "$Default", "3"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchBucket"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("connection refused")))
}

func TestPersisterAgainstObjectStore(t *testing.T) {
	env := test.SkipUnlessEnv(t, "EPH_S3_ENDPOINT", "EPH_S3_ACCESS_KEY", "EPH_S3_SECRET_KEY")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := New(Options{
		Endpoint:        env["EPH_S3_ENDPOINT"],
		AccessKeyID:     env["EPH_S3_ACCESS_KEY"],
		SecretAccessKey: env["EPH_S3_SECRET_KEY"],
		Bucket:          strings.ToLower(test.RandomString("eph", 6)),
	})
	require.NoError(t, err)
	require.NoError(t, p.EnsureStore(ctx))
	require.NoError(t, p.EnsureStore(ctx))

	_, err = p.Read(ctx, "ns", "hub", "group", "0")
	assert.True(t, errors.Is(err, persist.ErrNotFound))

	require.NoError(t, p.Write(ctx, "ns", "hub", "group", "0", persist.NewCheckpoint("500", 5, time.Now())))
	cp, err := p.Read(ctx, "ns", "hub", "group", "0")
	require.NoError(t, err)
	assert.Equal(t, int64(5), cp.SequenceNumber)
	assert.Equal(t, "500", cp.Offset)
}
