package eventhub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvent_GetCheckpoint(t *testing.T) {
	now := time.Now()
	event := NewReceivedEvent([]byte("hello"), 1024, 17, now)

	assert.True(t, event.HasCheckpoint())
	checkpoint := event.GetCheckpoint()
	assert.Equal(t, "1024", checkpoint.Offset)
	assert.Equal(t, int64(17), checkpoint.SequenceNumber)
	assert.Equal(t, now, checkpoint.EnqueueTime)
}

func TestEvent_WithoutSystemProperties(t *testing.T) {
	event := NewEventFromString("hello")

	assert.False(t, event.HasCheckpoint())
	checkpoint := event.GetCheckpoint()
	assert.Equal(t, "", checkpoint.Offset)
	assert.Equal(t, int64(0), checkpoint.SequenceNumber)
}
