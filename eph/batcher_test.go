package eph

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

func TestBatcher_RecordCompletion(t *testing.T) {
	now := time.Now()
	tests := map[string]func(*testing.T, *batcher, *partitionLock){
		"BelowThreshold": func(t *testing.T, b *batcher, l *partitionLock) {
			for i := int64(1); i <= 2; i++ {
				decision, err := b.recordCompletion(l, checkpointAt(i))
				require.NoError(t, err)
				assert.Equal(t, noFlush, decision)
			}
			assert.Equal(t, uint16(2), l.pendingCount)
			assert.Equal(t, int64(2), l.position.SequenceNumber)
		},
		"AtThreshold": func(t *testing.T, b *batcher, l *partitionLock) {
			var decision flushDecision
			for i := int64(1); i <= 3; i++ {
				var err error
				decision, err = b.recordCompletion(l, checkpointAt(i))
				require.NoError(t, err)
			}
			assert.Equal(t, flushNow, decision)
		},
		"EqualPositionAccepted": func(t *testing.T, b *batcher, l *partitionLock) {
			_, err := b.recordCompletion(l, checkpointAt(4))
			require.NoError(t, err)
			_, err = b.recordCompletion(l, checkpointAt(4))
			require.NoError(t, err)
			assert.Equal(t, uint16(2), l.pendingCount)
		},
		"Regression": func(t *testing.T, b *batcher, l *partitionLock) {
			_, err := b.recordCompletion(l, checkpointAt(5))
			require.NoError(t, err)
			_, err = b.recordCompletion(l, checkpointAt(3))
			assert.ErrorIs(t, err, ErrPositionRegressed)
			assert.Equal(t, int64(5), l.position.SequenceNumber)
			assert.Equal(t, uint16(1), l.pendingCount)
		},
		"Closing": func(t *testing.T, b *batcher, l *partitionLock) {
			_, err := b.recordCompletion(l, checkpointAt(1))
			require.NoError(t, err)
			l.state = PartitionClosing
			decision, err := b.recordCompletion(l, checkpointAt(2))
			require.NoError(t, err)
			assert.Equal(t, dropped, decision)
			assert.Equal(t, int64(1), l.position.SequenceNumber)
			assert.Equal(t, uint16(1), l.pendingCount)
		},
		"MaximumSeenSoFar": func(t *testing.T, b *batcher, l *partitionLock) {
			max := int64(-1)
			for _, seq := range []int64{1, 1, 4, 9, 9, 12} {
				_, err := b.recordCompletion(l, checkpointAt(seq))
				require.NoError(t, err)
				if seq > max {
					max = seq
				}
				assert.Equal(t, max, l.position.SequenceNumber)
			}
		},
	}

	for name, testFunc := range tests {
		t.Run(name, func(t *testing.T) {
			b := &batcher{messageCount: 3, interval: time.Hour}
			testFunc(t, b, newPartitionLock("0", nil, now))
		})
	}
}

func TestBatcher_StartingPositionIsFloor(t *testing.T) {
	b := &batcher{messageCount: 10, interval: time.Hour}
	start := checkpointAt(10)
	l := newPartitionLock("0", &start, time.Now())
	assert.Equal(t, uint16(0), l.pendingCount)

	_, err := b.recordCompletion(l, checkpointAt(9))
	assert.ErrorIs(t, err, ErrPositionRegressed)

	_, err = b.recordCompletion(l, checkpointAt(11))
	assert.NoError(t, err)
}

func TestBatcher_IntervalElapsed(t *testing.T) {
	now := time.Now()
	b := &batcher{messageCount: 1000, interval: time.Second}
	l := newPartitionLock("0", nil, now)

	assert.False(t, b.intervalElapsed(l, now.Add(time.Hour)), "nothing pending")

	_, err := b.recordCompletion(l, checkpointAt(5))
	require.NoError(t, err)
	assert.False(t, b.intervalElapsed(l, now.Add(999*time.Millisecond)))
	assert.True(t, b.intervalElapsed(l, now.Add(time.Second)))

	l.state = PartitionClosing
	assert.False(t, b.intervalElapsed(l, now.Add(time.Hour)), "closing partitions are drained, not ticked")
}

func TestPartitionLock_PendingCountSaturates(t *testing.T) {
	l := newPartitionLock("0", nil, time.Now())
	l.pendingCount = math.MaxUint16 - 1
	l.increment()
	l.increment()
	assert.Equal(t, uint16(math.MaxUint16), l.pendingCount)
}

func TestPartitionLock_Flushed(t *testing.T) {
	now := time.Now()
	l := newPartitionLock("0", nil, now)
	pos := persist.NewCheckpoint("100", 1, time.Time{})
	l.position = &pos
	l.pendingCount = 5

	later := now.Add(time.Minute)
	l.flushed(3, later)
	assert.Equal(t, uint16(2), l.pendingCount, "completions recorded during the write stay pending")
	assert.Equal(t, later, l.lastFlushAt)

	l.flushed(2, later)
	assert.Equal(t, uint16(0), l.pendingCount)

	_, _, ok := l.snapshot()
	assert.False(t, ok)
}

func TestPartitionState_String(t *testing.T) {
	assert.Equal(t, "Uninitialized", PartitionUninitialized.String())
	assert.Equal(t, "Active", PartitionActive.String())
	assert.Equal(t, "Closing", PartitionClosing.String())
	assert.Equal(t, "Removed", PartitionRemoved.String())
	assert.Equal(t, "Unknown", PartitionState(42).String())
}
