// Package eventhub provides the event model shared by the Event Hubs event processor host and its checkpoint stores.
package eventhub

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
	"strconv"
	"time"

	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

const (
	// DefaultConsumerGroup is the default name for a event stream consumer group
	DefaultConsumerGroup = "$Default"
)

type (
	// Event is an Event Hubs message delivered to a processor
	Event struct {
		Data             []byte
		PartitionKey     *string
		Properties       map[string]interface{}
		ID               string
		SystemProperties *SystemProperties
	}

	// SystemProperties are used to store properties that are set by the system.
	SystemProperties struct {
		SequenceNumber *int64     `mapstructure:"x-opt-sequence-number"`
		EnqueuedTime   *time.Time `mapstructure:"x-opt-enqueued-time"`
		Offset         *int64     `mapstructure:"x-opt-offset"`
		PartitionID    *int16     `mapstructure:"x-opt-partition-id"`
		PartitionKey   *string    `mapstructure:"x-opt-partition-key"`
	}

	// Handler is the function signature for any receiver of events
	Handler func(ctx context.Context, event *Event) error
)

// NewEventFromString builds an Event from a string message
func NewEventFromString(message string) *Event {
	return NewEvent([]byte(message))
}

// NewEvent builds an Event from a slice of data
func NewEvent(data []byte) *Event {
	return &Event{
		Data: data,
	}
}

// HasCheckpoint reports whether the broker stamped the event with a sequence number, which is required before the
// event's position can be checkpointed
func (e *Event) HasCheckpoint() bool {
	return e.SystemProperties != nil && e.SystemProperties.SequenceNumber != nil
}

// GetCheckpoint returns the checkpoint information on the Event
func (e *Event) GetCheckpoint() persist.Checkpoint {
	var offset string
	var enqueueTime time.Time
	var sequenceNumber int64
	if e.SystemProperties == nil {
		return persist.NewCheckpoint(offset, sequenceNumber, enqueueTime)
	}

	if e.SystemProperties.Offset != nil {
		offset = strconv.FormatInt(*e.SystemProperties.Offset, 10)
	}

	if e.SystemProperties.EnqueuedTime != nil {
		enqueueTime = *e.SystemProperties.EnqueuedTime
	}

	if e.SystemProperties.SequenceNumber != nil {
		sequenceNumber = *e.SystemProperties.SequenceNumber
	}

	return persist.NewCheckpoint(offset, sequenceNumber, enqueueTime)
}
