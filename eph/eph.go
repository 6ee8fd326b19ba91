// Package eph provides checkpoint coordination for an Event Hubs event processor host: per-partition batching of
// checkpoints by message count and elapsed time, and a safe drain of pending checkpoints when a partition closes.
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
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Azure/azure-event-hubs-processor-go"
	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

const (
	// Version is the semantic version of the event processor host
	Version = "0.1.0"
)

type (
	// EventProcessorHost coordinates checkpointing of the partitions assigned to this consumer instance
	EventProcessorHost struct {
		name              string
		consumerGroup     string
		cfg               Config
		checkpointer      Checkpointer
		logger            *log.Logger
		registerer        prometheus.Registerer
		onInitializing    PartitionInitializingHandler
		onClosing         PartitionClosingHandler
		onCheckpointError CheckpointErrorHandler

		metrics   *metrics
		locks     *lockContext
		lifecycle *lifecycle
		scheduler *scheduler

		handlers   map[string]eventhub.Handler
		handlersMu sync.Mutex
		hostMu     sync.Mutex
		started    bool
		closed     bool
	}

	// EventProcessorHostOption provides configuration options for an EventProcessorHost
	EventProcessorHostOption func(host *EventProcessorHost) error
)

// New constructs a new instance of an EventProcessorHost which persists checkpoints through checkpointer
func New(checkpointer Checkpointer, opts ...EventProcessorHostOption) (*EventProcessorHost, error) {
	if checkpointer == nil {
		return nil, errors.New("checkpointer must not be nil")
	}

	host := &EventProcessorHost{
		name:          uuid.New().String(),
		consumerGroup: eventhub.DefaultConsumerGroup,
		cfg:           DefaultConfig(),
		checkpointer:  checkpointer,
		logger:        log.StandardLogger(),
		handlers:      make(map[string]eventhub.Handler),
	}

	for _, opt := range opts {
		if err := opt(host); err != nil {
			return nil, err
		}
	}

	if err := host.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid event processor host configuration")
	}

	host.metrics = newMetrics()
	if err := host.metrics.register(host.registerer); err != nil {
		return nil, err
	}

	entry := log.NewEntry(host.logger).WithFields(log.Fields{
		"host":          host.name,
		"consumerGroup": host.consumerGroup,
	})
	host.locks = newLockContext(checkpointer, host.cfg, entry, host.metrics)
	host.locks.onCheckpointError = host.onCheckpointError
	host.lifecycle = &lifecycle{
		locks:          host.locks,
		checkpointer:   checkpointer,
		onInitializing: host.onInitializing,
		onClosing:      host.onClosing,
		log:            entry,
	}
	host.scheduler = newScheduler(host.locks, host.cfg.TickInterval)
	return host, nil
}

// Receive provides the ability to register a handler for processing Event Hub events
func (h *EventProcessorHost) Receive(handler eventhub.Handler) (close func() error, err error) {
	if handler == nil {
		return nil, errors.Wrap(ErrNilHandler, "event")
	}

	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	id := uuid.New().String()
	h.handlers[id] = handler
	close = func() error {
		h.handlersMu.Lock()
		defer h.handlersMu.Unlock()

		delete(h.handlers, id)
		return nil
	}
	return close, nil
}

// Start begins interval checkpointing and blocks until ctx is done or the process is interrupted, then closes the
// host
func (h *EventProcessorHost) Start(ctx context.Context) error {
	if err := h.StartNonBlocking(ctx); err != nil {
		return err
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	select {
	case <-signalChan:
	case <-ctx.Done():
	}
	return h.Close(context.Background())
}

// StartNonBlocking begins interval checkpointing in the background. Interval checkpointing stops when ctx is done;
// completions are still accepted and count thresholds still flush until Close.
func (h *EventProcessorHost) StartNonBlocking(ctx context.Context) error {
	h.hostMu.Lock()
	defer h.hostMu.Unlock()

	if h.closed {
		return errors.New("event processor host is closed")
	}
	if h.started {
		return nil
	}
	h.started = true
	h.scheduler.start(ctx)
	h.logger.WithField("host", h.name).Infof("event processor host started, checkpointing every %d events or %v",
		h.cfg.CheckpointMessageCount, h.cfg.CheckpointInterval)
	return nil
}

// GetName returns the name of the EventProcessorHost
func (h *EventProcessorHost) GetName() string {
	return h.name
}

// PartitionIDsBeingProcessed returns the IDs of the partitions currently owned by the host
func (h *EventProcessorHost) PartitionIDsBeingProcessed() []string {
	return h.locks.PartitionIDs()
}

// PartitionState returns the checkpointing state of a partition
func (h *EventProcessorHost) PartitionState(partitionID string) PartitionState {
	return h.locks.State(partitionID)
}

// PartitionInitializing is called by the lifecycle source when a partition is assigned to the host. It returns the
// position reception should start from.
func (h *EventProcessorHost) PartitionInitializing(ctx context.Context, partitionID string, defaultStartingPosition persist.Checkpoint) (persist.Checkpoint, error) {
	return h.lifecycle.PartitionInitializing(ctx, partitionID, defaultStartingPosition)
}

// PartitionClosing is called by the lifecycle source when a partition is revoked. Ownership must not be released
// before it returns.
func (h *EventProcessorHost) PartitionClosing(ctx context.Context, partitionID string, reason CloseReason) error {
	return h.lifecycle.PartitionClosing(ctx, partitionID, reason)
}

// RunLifecycle applies partition notifications in order until ctx is done or notifications is closed
func (h *EventProcessorHost) RunLifecycle(ctx context.Context, notifications <-chan PartitionNotification) error {
	return h.lifecycle.Run(ctx, notifications)
}

// CompleteMessage records that all events of the partition up to checkpoint have been processed
func (h *EventProcessorHost) CompleteMessage(partitionID string, checkpoint persist.Checkpoint) error {
	return h.locks.CompleteMessage(partitionID, checkpoint)
}

// ProcessEvent runs every registered handler for an event of the partition. When all handlers succeed, the event's
// position is recorded for checkpointing.
func (h *EventProcessorHost) ProcessEvent(ctx context.Context, partitionID string, event *eventhub.Event) error {
	if err := h.compositeHandlers()(ctx, event); err != nil {
		return err
	}

	if !event.HasCheckpoint() {
		h.locks.log.WithField("partitionID", partitionID).Warn("event has no sequence number; it will not be checkpointed")
		return nil
	}
	return h.locks.CompleteMessage(partitionID, event.GetCheckpoint())
}

// Close stops interval checkpointing and closes every owned partition, draining pending checkpoints concurrently.
// Flushes still running once the drain budget is spent are abandoned.
func (h *EventProcessorHost) Close(ctx context.Context) error {
	h.hostMu.Lock()
	defer h.hostMu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	h.scheduler.Stop()
	h.locks.shutdown()

	ids := h.locks.PartitionIDs()
	errs := make([]error, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			errs[i] = h.lifecycle.PartitionClosing(ctx, id, CloseReasonShutdown)
			return errs[i]
		})
	}
	_ = g.Wait()

	graceCtx, cancel := context.WithTimeout(ctx, h.cfg.DrainTimeout)
	defer cancel()
	if err := h.locks.waitForFlushes(graceCtx); err != nil {
		errs = append(errs, errors.Wrap(err, "abandoned in-flight checkpoints"))
	}

	h.metrics.unregister(h.registerer)
	err := multierr.Combine(errs...)
	if err != nil {
		h.logger.WithField("host", h.name).Error(err)
	}
	h.logger.WithField("host", h.name).Info("event processor host closed")
	return err
}

func (h *EventProcessorHost) compositeHandlers() eventhub.Handler {
	return func(ctx context.Context, event *eventhub.Event) error {
		h.handlersMu.Lock()
		handlers := make([]eventhub.Handler, 0, len(h.handlers))
		for _, handle := range h.handlers {
			handlers = append(handlers, handle)
		}
		h.handlersMu.Unlock()

		var g errgroup.Group
		for _, handle := range handlers {
			boundHandle := handle
			g.Go(func() error {
				return boundHandle(ctx, event)
			})
		}
		return g.Wait()
	}
}
