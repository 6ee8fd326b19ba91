package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-event-hubs-processor-go/internal/test"
	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestPersisterAgainstDatabase(t *testing.T) {
	env := test.SkipUnlessEnv(t, "EPH_POSTGRES_DSN")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := New(ctx, Config{DSN: env["EPH_POSTGRES_DSN"], MaxOpenConns: 2})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.EnsureStore(ctx))

	hub := test.RandomString("hub", 8)
	_, err = p.Read(ctx, "ns", hub, "group", "0")
	assert.True(t, errors.Is(err, persist.ErrNotFound))

	enqueued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Write(ctx, "ns", hub, "group", "0", persist.NewCheckpoint("700", 7, enqueued)))
	require.NoError(t, p.Write(ctx, "ns", hub, "group", "0", persist.NewCheckpoint("300", 3, enqueued)))

	cp, err := p.Read(ctx, "ns", hub, "group", "0")
	require.NoError(t, err)
	assert.Equal(t, int64(7), cp.SequenceNumber, "an older checkpoint does not replace a newer one")
	assert.Equal(t, "700", cp.Offset)
	assert.True(t, enqueued.Equal(cp.EnqueueTime))
}
