package eph

//	MIT License
//
//	Copyright (c) Microsoft Corporation. All rights reserved.
//
//	Permission is hereby granted, free of charge, to any person obtaining a copy
//	of this software and associated documentation files (the "Software"), to deal
//	in the Software without restriction, including without limitation the rights
//	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
//	copies of the Software, and to permit persons to whom the Software is
//	furnished to do so, subject to the following conditions:
//
//	The above copyright notice and this permission notice shall be included in all
//	copies or substantial portions of the Software.
//
//	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
//	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
//	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
//	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
//	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
//	SOFTWARE

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devigned/tab"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Azure/azure-event-hubs-processor-go/common"
	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

type (
	// CheckpointErrorHandler is notified when a checkpoint could not be written after all attempts. Processing of the
	// partition continues and the next threshold retries the write.
	CheckpointErrorHandler func(partitionID string, checkpoint persist.Checkpoint, err error)

	// lockContext owns the partitionLock of every partition held by the host and performs their checkpoint writes
	lockContext struct {
		checkpointer      Checkpointer
		batcher           *batcher
		cfg               Config
		log               *log.Entry
		metrics           *metrics
		onCheckpointError CheckpointErrorHandler
		now               func() time.Time

		mu           sync.RWMutex
		locks        map[string]*partitionLock
		flushMu      sync.Mutex
		shuttingDown atomic.Bool
		flushes      sync.WaitGroup
	}
)

func newLockContext(checkpointer Checkpointer, cfg Config, logger *log.Entry, m *metrics) *lockContext {
	return &lockContext{
		checkpointer: checkpointer,
		batcher:      newBatcher(cfg),
		cfg:          cfg,
		log:          logger,
		metrics:      m,
		now:          time.Now,
		locks:        make(map[string]*partitionLock),
	}
}

// AddPartition creates the lock for a newly owned partition. A non-nil startingPosition becomes the floor below
// which completions are rejected; it is not written back.
func (c *lockContext) AddPartition(partitionID string, startingPosition *persist.Checkpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.log.WithField("partitionID", partitionID)
	if _, ok := c.locks[partitionID]; ok {
		entry.Warn("partition initialized while a lock for it is still held; ignoring")
		return errors.Wrapf(ErrPartitionExists, "partition %q", partitionID)
	}

	c.locks[partitionID] = newPartitionLock(partitionID, startingPosition, c.now())
	c.metrics.partitionsOwned.Inc()
	if startingPosition != nil {
		entry = entry.WithField("sequenceNumber", startingPosition.SequenceNumber)
	}
	entry.Info("partition checkpointing started")
	return nil
}

// CompleteMessage records that all events up to checkpoint have been processed. Completions for partitions which
// are not owned, or are closing, are dropped. The call never blocks on I/O.
func (c *lockContext) CompleteMessage(partitionID string, checkpoint persist.Checkpoint) error {
	l := c.get(partitionID)
	if l == nil {
		c.log.WithField("partitionID", partitionID).Debug("completion for partition not owned; dropping")
		c.metrics.completionsDropped.WithLabelValues(reasonUnowned).Inc()
		return nil
	}

	l.mu.Lock()
	decision, err := c.batcher.recordCompletion(l, checkpoint)
	start := decision == flushNow && !l.flushing
	if start {
		l.flushing = true
	}
	l.mu.Unlock()

	entry := c.log.WithFields(log.Fields{"partitionID": partitionID, "sequenceNumber": checkpoint.SequenceNumber})
	if err != nil {
		entry.Error(err)
		c.metrics.completionsRejected.Inc()
		return err
	}

	switch decision {
	case dropped:
		entry.Debug("completion for closing partition; dropping")
		c.metrics.completionsDropped.WithLabelValues(reasonClosing).Inc()
	case flushNow:
		if start {
			c.startFlush(l)
		}
	}
	return nil
}

// ClosePartition stops accepting completions for the partition, writes any pending position and removes the lock.
// It returns only once the drain concluded or the drain budget ran out. A returned error wraps ErrDrainFailed and is
// informational; the partition is released either way.
func (c *lockContext) ClosePartition(ctx context.Context, partitionID string) error {
	l := c.get(partitionID)
	entry := c.log.WithField("partitionID", partitionID)
	if l == nil {
		entry.Debug("close for partition not owned; ignoring")
		return nil
	}

	l.mu.Lock()
	if l.state != PartitionActive {
		l.mu.Unlock()
		entry.Debug("partition already closing; waiting for its drain")
		return c.waitForClose(ctx, l)
	}
	l.state = PartitionClosing
	l.mu.Unlock()

	ctx, span := startSpan(ctx, "eph.lockContext.closePartition", partitionID)
	defer span.End()

	drainCtx, cancel := context.WithTimeout(ctx, c.cfg.DrainTimeout)
	defer cancel()

	drainErr := c.drain(drainCtx, l)

	c.mu.Lock()
	delete(c.locks, partitionID)
	c.mu.Unlock()

	c.metrics.partitionsOwned.Dec()
	l.removed(drainErr)

	if drainErr != nil {
		tab.For(ctx).Error(drainErr)
		entry.Error(drainErr)
	} else {
		entry.Info("partition checkpointing stopped")
	}
	return drainErr
}

// waitForClose blocks a concurrent closer until the close already in progress for l concluded. The wait is bounded
// by ctx and the drain budget.
func (c *lockContext) waitForClose(ctx context.Context, l *partitionLock) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.DrainTimeout)
	defer cancel()

	if !l.waitRemoved(waitCtx) {
		return errors.Wrapf(ErrDrainFailed, "partition %q: close in progress did not finish in time", l.partitionID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drainErr
}

// drain waits for an in-flight flush and then writes whatever is still pending. An in-flight flush which outlasts
// ctx is abandoned.
func (c *lockContext) drain(ctx context.Context, l *partitionLock) error {
	if !l.acquire(ctx) {
		l.cancel()
		c.metrics.checkpointWrites.WithLabelValues(resultAbandoned).Inc()
		return errors.Wrapf(ErrDrainFailed, "partition %q: in-flight checkpoint did not finish in time", l.partitionID)
	}
	defer l.release()

	l.mu.Lock()
	checkpoint, count, ok := l.snapshot()
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if err := c.write(ctx, l.partitionID, checkpoint, c.cfg.DrainMaxAttempts, false); err != nil {
		c.reportFailure(l.partitionID, checkpoint, err)
		return errors.Wrapf(ErrDrainFailed, "partition %q: %s", l.partitionID, err)
	}

	l.mu.Lock()
	l.flushed(count, c.now())
	l.mu.Unlock()
	return nil
}

// flushExpired starts a flush for every active partition whose checkpoint interval has elapsed at now. Each lock
// is examined under its own mutex only.
func (c *lockContext) flushExpired(now time.Time) {
	for _, l := range c.snapshot() {
		l.mu.Lock()
		start := !l.flushing && c.batcher.intervalElapsed(l, now)
		if start {
			l.flushing = true
		}
		l.mu.Unlock()

		if start {
			c.startFlush(l)
		}
	}
}

func (c *lockContext) startFlush(l *partitionLock) {
	c.flushMu.Lock()
	if c.shuttingDown.Load() {
		c.flushMu.Unlock()
		l.mu.Lock()
		l.flushing = false
		l.mu.Unlock()
		c.metrics.checkpointWrites.WithLabelValues(resultAbandoned).Inc()
		return
	}
	c.flushes.Add(1)
	c.flushMu.Unlock()

	go func() {
		defer c.flushes.Done()
		c.flush(l)
	}()
}

// flush writes the pending position of l, repeating while the count threshold is still reached once a write
// completes. A closing partition is left to the drain.
func (c *lockContext) flush(l *partitionLock) {
	if !l.acquire(l.ctx) {
		l.mu.Lock()
		l.flushing = false
		l.mu.Unlock()
		return
	}
	defer l.release()

	for {
		l.mu.Lock()
		checkpoint, count, ok := l.snapshot()
		if !ok || l.closing() {
			l.flushing = false
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()

		err := c.write(l.ctx, l.partitionID, checkpoint, c.cfg.FlushMaxAttempts, true)

		l.mu.Lock()
		if err != nil {
			l.flushing = false
			l.mu.Unlock()
			c.reportFailure(l.partitionID, checkpoint, err)
			return
		}
		l.flushed(count, c.now())
		if l.closing() || !c.batcher.countReached(l) {
			l.flushing = false
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
	}
}

// write persists checkpoint with up to attempts tries. When stopOnShutdown is set no retry is made once the host
// has begun shutting down.
func (c *lockContext) write(ctx context.Context, partitionID string, checkpoint persist.Checkpoint, attempts int, stopOnShutdown bool) error {
	ctx, span := startSpan(ctx, "eph.lockContext.write", partitionID)
	defer span.End()
	span.AddAttributes(tab.Int64Attribute("eph.sequence_number", checkpoint.SequenceNumber))

	started := time.Now()
	b := common.NewBackoff(c.cfg.FlushBackoffMin, c.cfg.FlushBackoffMax)
	err := common.Retry(ctx, attempts, b, func(ctx context.Context) error {
		if stopOnShutdown && c.shuttingDown.Load() {
			return common.AsPermanent(ErrShuttingDown)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.FlushTimeout)
		defer cancel()
		err := c.checkpointer.UpdateCheckpoint(attemptCtx, partitionID, checkpoint)
		if err != nil {
			c.log.WithFields(log.Fields{"partitionID": partitionID, "sequenceNumber": checkpoint.SequenceNumber}).
				Debugf("checkpoint attempt failed: %v", err)
		}
		return err
	})
	c.metrics.checkpointWriteDuration.Observe(time.Since(started).Seconds())

	switch {
	case err == nil:
		c.metrics.checkpointWrites.WithLabelValues(resultSuccess).Inc()
	case errors.Is(err, ErrShuttingDown) || ctx.Err() != nil:
		tab.For(ctx).Error(err)
		c.metrics.checkpointWrites.WithLabelValues(resultAbandoned).Inc()
	default:
		tab.For(ctx).Error(err)
		c.metrics.checkpointWrites.WithLabelValues(resultFailure).Inc()
	}
	return err
}

func (c *lockContext) reportFailure(partitionID string, checkpoint persist.Checkpoint, err error) {
	c.log.WithFields(log.Fields{"partitionID": partitionID, "sequenceNumber": checkpoint.SequenceNumber}).
		Errorf("failed to write checkpoint: %v", err)
	if c.onCheckpointError != nil {
		c.onCheckpointError(partitionID, checkpoint, err)
	}
}

// State returns the checkpointing state of a partition
func (c *lockContext) State(partitionID string) PartitionState {
	l := c.get(partitionID)
	if l == nil {
		return PartitionUninitialized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// PartitionIDs returns the sorted IDs of partitions currently holding a lock
func (c *lockContext) PartitionIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.locks))
	for id := range c.locks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *lockContext) get(partitionID string) *partitionLock {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locks[partitionID]
}

func (c *lockContext) snapshot() []*partitionLock {
	c.mu.RLock()
	defer c.mu.RUnlock()
	locks := make([]*partitionLock, 0, len(c.locks))
	for _, l := range c.locks {
		locks = append(locks, l)
	}
	return locks
}

// shutdown stops new asynchronous flushes and further retries of in-flight ones. Drains are unaffected.
func (c *lockContext) shutdown() {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	c.shuttingDown.Store(true)
}

// waitForFlushes blocks until every asynchronous flush started so far has returned or ctx is done
func (c *lockContext) waitForFlushes(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.flushes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
