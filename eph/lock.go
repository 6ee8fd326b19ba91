package eph

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

const (
	// PartitionUninitialized is the state of a partition this host holds no lock for
	PartitionUninitialized PartitionState = iota
	// PartitionActive accepts completions and flushes on thresholds
	PartitionActive
	// PartitionClosing rejects completions while the pending position is drained
	PartitionClosing
	// PartitionRemoved is the terminal state of a lock after the drain concluded
	PartitionRemoved
)

type (
	// PartitionState is the checkpointing state of a partition owned by the host
	PartitionState int

	// partitionLock holds the unpersisted checkpoint state of a single owned partition. Fields are guarded by mu
	// except sem, which serializes checkpoint writes, ctx, which is cancelled when the lock is abandoned, and
	// drained, which is closed once the lock reached PartitionRemoved.
	partitionLock struct {
		partitionID  string
		mu           sync.Mutex
		state        PartitionState
		position     *persist.Checkpoint
		pendingCount uint16
		lastFlushAt  time.Time
		flushing     bool
		drainErr     error

		sem     chan struct{}
		drained chan struct{}
		ctx     context.Context
		cancel  context.CancelFunc
	}
)

func (s PartitionState) String() string {
	switch s {
	case PartitionUninitialized:
		return "Uninitialized"
	case PartitionActive:
		return "Active"
	case PartitionClosing:
		return "Closing"
	case PartitionRemoved:
		return "Removed"
	default:
		return "Unknown"
	}
}

func newPartitionLock(partitionID string, startingPosition *persist.Checkpoint, now time.Time) *partitionLock {
	ctx, cancel := context.WithCancel(context.Background())
	l := &partitionLock{
		partitionID: partitionID,
		state:       PartitionActive,
		lastFlushAt: now,
		sem:         make(chan struct{}, 1),
		drained:     make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	if startingPosition != nil {
		pos := *startingPosition
		l.position = &pos
	}
	return l
}

func (l *partitionLock) closing() bool {
	return l.state != PartitionActive
}

// increment adds one completion to the pending count without wrapping
func (l *partitionLock) increment() {
	if l.pendingCount < math.MaxUint16 {
		l.pendingCount++
	}
}

// snapshot returns the position and count a flush started now would persist
func (l *partitionLock) snapshot() (persist.Checkpoint, uint16, bool) {
	if l.position == nil || l.pendingCount == 0 {
		return persist.Checkpoint{}, 0, false
	}
	return *l.position, l.pendingCount, true
}

// flushed accounts for a successful write of count completions. Completions recorded while the write was in
// flight stay pending.
func (l *partitionLock) flushed(count uint16, at time.Time) {
	if count >= l.pendingCount {
		l.pendingCount = 0
	} else {
		l.pendingCount -= count
	}
	l.lastFlushAt = at
}

// acquire takes the single flush slot, giving up when ctx is done
func (l *partitionLock) acquire(ctx context.Context) bool {
	select {
	case l.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *partitionLock) release() {
	<-l.sem
}

// removed moves the lock to its terminal state and wakes every caller waiting for the drain
func (l *partitionLock) removed(drainErr error) {
	l.mu.Lock()
	l.state = PartitionRemoved
	l.drainErr = drainErr
	l.mu.Unlock()
	l.cancel()
	close(l.drained)
}

// waitRemoved blocks until the lock reached PartitionRemoved or ctx is done, reporting which happened
func (l *partitionLock) waitRemoved(ctx context.Context) bool {
	select {
	case <-l.drained:
		return true
	case <-ctx.Done():
		return false
	}
}
