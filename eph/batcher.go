package eph

import (
	"time"

	"github.com/pkg/errors"

	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

const (
	noFlush flushDecision = iota
	flushNow
	dropped
)

type (
	flushDecision int

	// batcher decides when the pending position of a partition should be written. Callers must hold the lock's
	// mutex.
	batcher struct {
		messageCount uint16
		interval     time.Duration
	}
)

func newBatcher(cfg Config) *batcher {
	return &batcher{
		messageCount: uint16(cfg.CheckpointMessageCount),
		interval:     cfg.CheckpointInterval,
	}
}

// recordCompletion moves the pending position of l to checkpoint. Only the count threshold is evaluated here, the
// interval threshold belongs to the scheduler tick.
func (b *batcher) recordCompletion(l *partitionLock, checkpoint persist.Checkpoint) (flushDecision, error) {
	if l.closing() {
		return dropped, nil
	}

	if l.position != nil && checkpoint.Before(*l.position) {
		return noFlush, errors.Wrapf(ErrPositionRegressed, "partition %q: sequence number %d is before %d",
			l.partitionID, checkpoint.SequenceNumber, l.position.SequenceNumber)
	}

	pos := checkpoint
	l.position = &pos
	l.increment()

	if b.countReached(l) {
		return flushNow, nil
	}
	return noFlush, nil
}

func (b *batcher) countReached(l *partitionLock) bool {
	return l.pendingCount >= b.messageCount
}

func (b *batcher) intervalElapsed(l *partitionLock, now time.Time) bool {
	return !l.closing() && l.pendingCount > 0 && now.Sub(l.lastFlushAt) >= b.interval
}
