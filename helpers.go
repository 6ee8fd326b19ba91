package eventhub

import (
	"time"
)

// NewReceivedEvent builds an Event as it would arrive from a partition, stamped with its offset, sequence number and
// enqueued time. It is useful for feeding events from a custom receiver into an EventProcessorHost.
func NewReceivedEvent(data []byte, offset, sequenceNumber int64, enqueuedTime time.Time) *Event {
	return &Event{
		Data: data,
		SystemProperties: &SystemProperties{
			SequenceNumber: ptrInt64(sequenceNumber),
			Offset:         ptrInt64(offset),
			EnqueuedTime:   ptrTime(enqueuedTime),
		},
	}
}

// ptrInt64 takes a int64 and returns a pointer to that int64. For use in literal pointers, ptrInt64(1) -> *int64
func ptrInt64(number int64) *int64 {
	return &number
}

// ptrTime takes a time.Time and returns a pointer to that time. For use in literal pointers
func ptrTime(toPtr time.Time) *time.Time {
	return &toPtr
}
