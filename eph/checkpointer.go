package eph

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

type (
	// Checkpointer interface provides the ability to persist durable checkpoints for event processors. Writes must
	// be idempotent; they are retried on failure.
	Checkpointer interface {
		GetCheckpoint(ctx context.Context, partitionID string) (persist.Checkpoint, bool, error)
		UpdateCheckpoint(ctx context.Context, partitionID string, checkpoint persist.Checkpoint) error
	}

	// PersisterCheckpointer adapts a persist.CheckpointPersister to the Checkpointer interface for a single Event Hub
	// and consumer group
	PersisterCheckpointer struct {
		persister     persist.CheckpointPersister
		namespace     string
		hubName       string
		consumerGroup string
	}
)

// NewPersisterCheckpointer constructs a Checkpointer which reads and writes through persister
func NewPersisterCheckpointer(persister persist.CheckpointPersister, namespace, hubName, consumerGroup string) *PersisterCheckpointer {
	return &PersisterCheckpointer{
		persister:     persister,
		namespace:     namespace,
		hubName:       hubName,
		consumerGroup: consumerGroup,
	}
}

// GetCheckpoint returns the persisted checkpoint for a partition and false if none has been written yet
func (c *PersisterCheckpointer) GetCheckpoint(ctx context.Context, partitionID string) (persist.Checkpoint, bool, error) {
	checkpoint, err := c.persister.Read(ctx, c.namespace, c.hubName, c.consumerGroup, partitionID)
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return persist.Checkpoint{}, false, nil
		}
		return persist.Checkpoint{}, false, err
	}
	return checkpoint, true, nil
}

// UpdateCheckpoint writes the checkpoint for a partition
func (c *PersisterCheckpointer) UpdateCheckpoint(ctx context.Context, partitionID string, checkpoint persist.Checkpoint) error {
	return c.persister.Write(ctx, c.namespace, c.hubName, c.consumerGroup, partitionID, checkpoint)
}
