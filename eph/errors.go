package eph

import (
	"github.com/pkg/errors"
)

var (
	// ErrPartitionExists is returned when a partition is added while a lock for it is still held
	ErrPartitionExists = errors.New("partition lock already exists")

	// ErrPositionRegressed is returned when a completion reports a position earlier than one already recorded
	ErrPositionRegressed = errors.New("checkpoint position regressed")

	// ErrDrainFailed wraps the final checkpoint failure of a closing partition. The partition is released regardless.
	ErrDrainFailed = errors.New("failed to drain pending checkpoint")

	// ErrHandlerAlreadyRegistered is returned when a lifecycle handler is registered more than once
	ErrHandlerAlreadyRegistered = errors.New("handler already registered")

	// ErrNilHandler is returned when a nil handler is registered
	ErrNilHandler = errors.New("handler must not be nil")

	// ErrShuttingDown is returned for checkpoint writes abandoned because the host is closing
	ErrShuttingDown = errors.New("event processor host is shutting down")
)
