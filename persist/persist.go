package persist

import (
	"context"
	"path"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by a CheckpointPersister when no checkpoint has been written for the key
	ErrNotFound = errors.New("checkpoint not found")
)

type (
	// CheckpointPersister provides persistence for the received offset for a given namespace, hub name, consumer group,
	// partition Id and offset so that if a receiver where to be interrupted, it could resume after the last consumed
	// event.
	CheckpointPersister interface {
		Write(ctx context.Context, namespace, name, consumerGroup, partitionID string, checkpoint Checkpoint) error
		Read(ctx context.Context, namespace, name, consumerGroup, partitionID string) (Checkpoint, error)
	}

	// MemoryPersister is a default implementation of a Hub CheckpointPersister, which will persist offset information
	// in memory.
	MemoryPersister struct {
		values map[string]Checkpoint
		mu     sync.Mutex
	}
)

// NewMemoryPersister creates a new in-memory storage for checkpoints
//
// MemoryPersister is only intended to be shared with EventProcessorHosts within the same process. This implementation
// is a toy. You should probably use the Azure Storage implementation or any other that provides durable storage for
// checkpoints.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{
		values: make(map[string]Checkpoint),
	}
}

// Write stores the checkpoint for the key
func (p *MemoryPersister) Write(_ context.Context, namespace, name, consumerGroup, partitionID string, checkpoint Checkpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := getPersistenceKey(namespace, name, consumerGroup, partitionID)
	p.values[key] = checkpoint
	return nil
}

// Read fetches the checkpoint for the key, or ErrNotFound
func (p *MemoryPersister) Read(_ context.Context, namespace, name, consumerGroup, partitionID string) (Checkpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := getPersistenceKey(namespace, name, consumerGroup, partitionID)
	if offset, ok := p.values[key]; ok {
		return offset, nil
	}
	return Checkpoint{}, errors.Wrapf(ErrNotFound, "could not read the offset for the key %s", key)
}

// Key builds the storage key used by persisters for a partition checkpoint
func Key(namespace, name, consumerGroup, partitionID string) string {
	return getPersistenceKey(namespace, name, consumerGroup, partitionID)
}

func getPersistenceKey(namespace, name, consumerGroup, partitionID string) string {
	return path.Join(namespace, name, consumerGroup, partitionID)
}
