package test

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

var (
	// ErrInjected is returned by RecordingCheckpointer for writes configured to fail
	ErrInjected = errors.New("injected checkpoint failure")
)

type (
	// RecordingCheckpointer is an in-memory checkpointer which records every write, can fail or block writes on
	// demand and tracks how many writes for a partition ran at the same time
	RecordingCheckpointer struct {
		mu            sync.Mutex
		checkpoints   map[string]persist.Checkpoint
		writes        map[string][]persist.Checkpoint
		attempts      map[string]int
		failures      map[string]int
		inFlight      map[string]int
		maxConcurrent map[string]int
		gate          chan struct{}
		gated         map[string]bool
		getErr        error
		started       chan string
	}
)

// NewRecordingCheckpointer constructs an empty RecordingCheckpointer
func NewRecordingCheckpointer() *RecordingCheckpointer {
	return &RecordingCheckpointer{
		checkpoints:   make(map[string]persist.Checkpoint),
		writes:        make(map[string][]persist.Checkpoint),
		attempts:      make(map[string]int),
		failures:      make(map[string]int),
		inFlight:      make(map[string]int),
		maxConcurrent: make(map[string]int),
		started:       make(chan string, 1024),
	}
}

// GetCheckpoint returns the last written or seeded checkpoint of a partition
func (r *RecordingCheckpointer) GetCheckpoint(_ context.Context, partitionID string) (persist.Checkpoint, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return persist.Checkpoint{}, false, r.getErr
	}
	cp, ok := r.checkpoints[partitionID]
	return cp, ok, nil
}

// UpdateCheckpoint records a write attempt. It blocks while the checkpointer is blocked and fails while failures
// are pending for the partition.
func (r *RecordingCheckpointer) UpdateCheckpoint(ctx context.Context, partitionID string, checkpoint persist.Checkpoint) error {
	r.mu.Lock()
	r.attempts[partitionID]++
	r.inFlight[partitionID]++
	if r.inFlight[partitionID] > r.maxConcurrent[partitionID] {
		r.maxConcurrent[partitionID] = r.inFlight[partitionID]
	}
	gate := r.gate
	if r.gated != nil && !r.gated[partitionID] {
		gate = nil
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight[partitionID]--
		r.mu.Unlock()
	}()

	select {
	case r.started <- partitionID:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures[partitionID] > 0 {
		r.failures[partitionID]--
		return errors.Wrapf(ErrInjected, "partition %q", partitionID)
	}
	r.checkpoints[partitionID] = checkpoint
	r.writes[partitionID] = append(r.writes[partitionID], checkpoint)
	return nil
}

// Seed stores a checkpoint as if it had been written by an earlier owner
func (r *RecordingCheckpointer) Seed(partitionID string, checkpoint persist.Checkpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints[partitionID] = checkpoint
}

// FailNext makes the next n writes for the partition fail
func (r *RecordingCheckpointer) FailNext(partitionID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[partitionID] = n
}

// FailGet makes GetCheckpoint return err
func (r *RecordingCheckpointer) FailGet(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getErr = err
}

// Block holds subsequent writes for the given partitions, or for all partitions when none are given, until the
// returned release func is called or the write's context is done
func (r *RecordingCheckpointer) Block(partitionIDs ...string) (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.gate = gate
	r.gated = nil
	if len(partitionIDs) > 0 {
		r.gated = make(map[string]bool, len(partitionIDs))
		for _, id := range partitionIDs {
			r.gated[id] = true
		}
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.gate == gate {
				r.gate = nil
				r.gated = nil
			}
			r.mu.Unlock()
			close(gate)
		})
	}
}

// Started delivers the partition ID of every write attempt as it begins
func (r *RecordingCheckpointer) Started() <-chan string {
	return r.started
}

// Writes returns the successful writes of a partition in the order they completed
func (r *RecordingCheckpointer) Writes(partitionID string) []persist.Checkpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	writes := make([]persist.Checkpoint, len(r.writes[partitionID]))
	copy(writes, r.writes[partitionID])
	return writes
}

// Attempts returns the number of write attempts made for a partition
func (r *RecordingCheckpointer) Attempts(partitionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[partitionID]
}

// MaxConcurrent returns the highest number of writes for a partition that were running at once
func (r *RecordingCheckpointer) MaxConcurrent(partitionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxConcurrent[partitionID]
}

// WaitForWrites polls until the partition has at least n successful writes or d elapses
func (r *RecordingCheckpointer) WaitForWrites(partitionID string, n int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if len(r.Writes(partitionID)) >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
