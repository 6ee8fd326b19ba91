package eph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_FlushesOnTick(t *testing.T) {
	cfg := testConfig()
	cfg.CheckpointInterval = time.Second
	c, checkpointer, clock := newTestLockContext(cfg)
	require.NoError(t, c.AddPartition("0", nil))
	require.NoError(t, c.CompleteMessage("0", checkpointAt(5)))

	s := newScheduler(c, 5*time.Millisecond)
	s.now = func() time.Time {
		return clock.Now().Add(2 * time.Second)
	}
	go s.Run(context.Background())

	assert.True(t, checkpointer.WaitForWrites("0", 1, 2*time.Second))
	s.Stop()
	waitForFlushes(t, c)
	assert.Equal(t, []int64{5}, sequenceNumbers(checkpointer.Writes("0")))
}

func TestScheduler_StopWithoutRun(t *testing.T) {
	c, _, _ := newTestLockContext(testConfig())
	s := newScheduler(c, time.Millisecond)
	assert.NotPanics(t, s.Stop)
}

func TestScheduler_StopsWithContext(t *testing.T) {
	c, _, _ := newTestLockContext(testConfig())
	s := newScheduler(c, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	c, _, _ := newTestLockContext(testConfig())
	s := newScheduler(c, time.Millisecond)
	stopped := s.start(context.Background())
	require.NotNil(t, stopped)
	assert.Nil(t, s.start(context.Background()))

	s.Stop()
	select {
	case <-stopped:
	default:
		t.Fatal("Stop returned before the scheduler loop ended")
	}
}
