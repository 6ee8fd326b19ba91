package eph

import (
	"context"

	"github.com/devigned/tab"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

const (
	// CloseReasonUnknown is used when the lifecycle source does not say why a partition is closing
	CloseReasonUnknown CloseReason = iota
	// CloseReasonShutdown means the host itself is closing
	CloseReasonShutdown
	// CloseReasonOwnershipLost means the partition was assigned to another host
	CloseReasonOwnershipLost
)

const (
	// NotificationInitializing announces that a partition has been assigned to the host
	NotificationInitializing NotificationKind = iota
	// NotificationClosing announces that a partition is being revoked from the host
	NotificationClosing
)

type (
	// CloseReason describes why a partition is closing
	CloseReason int

	// NotificationKind identifies a partition lifecycle transition
	NotificationKind int

	// PartitionInitializingHandler is called after the host has started checkpointing a partition, with the
	// position processing should resume from
	PartitionInitializingHandler func(ctx context.Context, partitionID string, startingPosition persist.Checkpoint) error

	// PartitionClosingHandler is called after the pending checkpoint of a closing partition has been drained
	PartitionClosingHandler func(ctx context.Context, partitionID string, reason CloseReason) error

	// PartitionNotification is a lifecycle transition delivered to Run. The result is sent on Reply, if set, once
	// the transition has completed.
	PartitionNotification struct {
		Kind                    NotificationKind
		PartitionID             string
		DefaultStartingPosition persist.Checkpoint
		Reason                  CloseReason
		Reply                   chan<- PartitionNotificationResult
	}

	// PartitionNotificationResult is the outcome of a PartitionNotification
	PartitionNotificationResult struct {
		PartitionID      string
		StartingPosition persist.Checkpoint
		Err              error
	}

	lifecycle struct {
		locks          *lockContext
		checkpointer   Checkpointer
		onInitializing PartitionInitializingHandler
		onClosing      PartitionClosingHandler
		log            *log.Entry
	}
)

func (r CloseReason) String() string {
	switch r {
	case CloseReasonShutdown:
		return "Shutdown"
	case CloseReasonOwnershipLost:
		return "OwnershipLost"
	default:
		return "Unknown"
	}
}

// NewInitializingNotification builds an initializing notification and the channel its result is delivered on
func NewInitializingNotification(partitionID string, defaultStartingPosition persist.Checkpoint) (PartitionNotification, <-chan PartitionNotificationResult) {
	reply := make(chan PartitionNotificationResult, 1)
	return PartitionNotification{
		Kind:                    NotificationInitializing,
		PartitionID:             partitionID,
		DefaultStartingPosition: defaultStartingPosition,
		Reply:                   reply,
	}, reply
}

// NewClosingNotification builds a closing notification and the channel its result is delivered on
func NewClosingNotification(partitionID string, reason CloseReason) (PartitionNotification, <-chan PartitionNotificationResult) {
	reply := make(chan PartitionNotificationResult, 1)
	return PartitionNotification{
		Kind:        NotificationClosing,
		PartitionID: partitionID,
		Reason:      reason,
		Reply:       reply,
	}, reply
}

// PartitionInitializing starts checkpointing a partition and returns the position processing should resume from:
// the persisted checkpoint if there is one, otherwise defaultStartingPosition. The registered handler runs after
// the lock exists.
func (lc *lifecycle) PartitionInitializing(ctx context.Context, partitionID string, defaultStartingPosition persist.Checkpoint) (persist.Checkpoint, error) {
	ctx, span := startSpan(ctx, "eph.lifecycle.partitionInitializing", partitionID)
	defer span.End()

	start := defaultStartingPosition
	persisted, ok, err := lc.checkpointer.GetCheckpoint(ctx, partitionID)
	if err != nil {
		tab.For(ctx).Error(err)
		return start, errors.Wrapf(err, "failed to read checkpoint for partition %q", partitionID)
	}
	if ok {
		start = persisted
	}

	if err := lc.locks.AddPartition(partitionID, &start); err != nil {
		return start, err
	}

	if lc.onInitializing != nil {
		if err := lc.onInitializing(ctx, partitionID, start); err != nil {
			tab.For(ctx).Error(err)
			return start, errors.Wrapf(err, "partition initializing handler failed for partition %q", partitionID)
		}
	}
	return start, nil
}

// PartitionClosing drains and removes the lock of a partition, then runs the registered handler. It returns only
// after both have finished. A drain failure is included in the returned error but never prevents the handler
// from running.
func (lc *lifecycle) PartitionClosing(ctx context.Context, partitionID string, reason CloseReason) error {
	ctx, span := startSpan(ctx, "eph.lifecycle.partitionClosing", partitionID)
	defer span.End()
	span.AddAttributes(tab.StringAttribute("eph.close_reason", reason.String()))

	lc.log.WithField("partitionID", partitionID).Infof("partition closing: %s", reason)
	err := lc.locks.ClosePartition(ctx, partitionID)

	if lc.onClosing != nil {
		if handlerErr := lc.onClosing(ctx, partitionID, reason); handlerErr != nil {
			tab.For(ctx).Error(handlerErr)
			err = multierr.Append(err, errors.Wrapf(handlerErr, "partition closing handler failed for partition %q", partitionID))
		}
	}
	return err
}

// Run applies notifications in arrival order until ctx is done or notifications is closed. Each transition has
// completed before its result is sent.
func (lc *lifecycle) Run(ctx context.Context, notifications <-chan PartitionNotification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}

			result := lc.apply(ctx, n)
			if n.Reply == nil {
				continue
			}
			select {
			case n.Reply <- result:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (lc *lifecycle) apply(ctx context.Context, n PartitionNotification) PartitionNotificationResult {
	result := PartitionNotificationResult{PartitionID: n.PartitionID}
	switch n.Kind {
	case NotificationInitializing:
		result.StartingPosition, result.Err = lc.PartitionInitializing(ctx, n.PartitionID, n.DefaultStartingPosition)
	case NotificationClosing:
		result.Err = lc.PartitionClosing(ctx, n.PartitionID, n.Reason)
	default:
		result.Err = errors.Errorf("unknown notification kind %d for partition %q", n.Kind, n.PartitionID)
	}
	return result
}
