package eph

import (
	"context"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-event-hubs-processor-go/internal/test"
	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

type (
	fakeClock struct {
		mu  sync.Mutex
		now time.Time
	}
)

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FlushBackoffMin = time.Millisecond
	cfg.FlushBackoffMax = 2 * time.Millisecond
	cfg.FlushTimeout = time.Second
	cfg.DrainTimeout = 2 * time.Second
	return cfg
}

func newTestLockContext(cfg Config) (*lockContext, *test.RecordingCheckpointer, *fakeClock) {
	checkpointer := test.NewRecordingCheckpointer()
	clock := newFakeClock()
	c := newLockContext(checkpointer, cfg, log.NewEntry(discardLogger()), newMetrics())
	c.now = clock.Now
	return c, checkpointer, clock
}

func checkpointAt(sequenceNumber int64) persist.Checkpoint {
	return persist.NewCheckpoint(strconv.FormatInt(sequenceNumber*100, 10), sequenceNumber, time.Time{})
}

func sequenceNumbers(checkpoints []persist.Checkpoint) []int64 {
	seqs := make([]int64, len(checkpoints))
	for i, cp := range checkpoints {
		seqs[i] = cp.SequenceNumber
	}
	return seqs
}

func waitForFlushes(t *testing.T, c *lockContext) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.waitForFlushes(ctx))
}

func lockState(c *lockContext, partitionID string) (position *persist.Checkpoint, pendingCount uint16, lastFlushAt time.Time) {
	l := c.get(partitionID)
	if l == nil {
		return nil, 0, time.Time{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.position != nil {
		pos := *l.position
		position = &pos
	}
	return position, l.pendingCount, l.lastFlushAt
}
