package eph

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// WithConfig replaces the whole checkpoint configuration. Options applied later override individual fields.
func WithConfig(cfg Config) EventProcessorHostOption {
	return func(host *EventProcessorHost) error {
		host.cfg = cfg
		return nil
	}
}

// WithCheckpointInterval sets the maximum age of an unpersisted position
func WithCheckpointInterval(interval time.Duration) EventProcessorHostOption {
	return func(host *EventProcessorHost) error {
		host.cfg.CheckpointInterval = interval
		return nil
	}
}

// WithCheckpointMessageCount sets the number of completions per partition that triggers a checkpoint
func WithCheckpointMessageCount(count int) EventProcessorHostOption {
	return func(host *EventProcessorHost) error {
		host.cfg.CheckpointMessageCount = count
		return nil
	}
}

// WithConsumerGroup sets the consumer group name reported in logs
func WithConsumerGroup(consumerGroup string) EventProcessorHostOption {
	return func(host *EventProcessorHost) error {
		if consumerGroup == "" {
			return errors.New("consumer group must not be empty")
		}
		host.consumerGroup = consumerGroup
		return nil
	}
}

// WithHostName overrides the generated name of the host
func WithHostName(name string) EventProcessorHostOption {
	return func(host *EventProcessorHost) error {
		if name == "" {
			return errors.New("host name must not be empty")
		}
		host.name = name
		return nil
	}
}

// WithLogger sets the logger used by the host
func WithLogger(logger *log.Logger) EventProcessorHostOption {
	return func(host *EventProcessorHost) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		host.logger = logger
		return nil
	}
}

// WithMetricsRegisterer registers the host's checkpoint metrics with reg
func WithMetricsRegisterer(reg prometheus.Registerer) EventProcessorHostOption {
	return func(host *EventProcessorHost) error {
		host.registerer = reg
		return nil
	}
}

// WithPartitionInitializingHandler registers the handler called after a partition starts checkpointing. Only one
// handler may be registered.
func WithPartitionInitializingHandler(handler PartitionInitializingHandler) EventProcessorHostOption {
	return func(host *EventProcessorHost) error {
		if handler == nil {
			return errors.Wrap(ErrNilHandler, "partition initializing")
		}
		if host.onInitializing != nil {
			return errors.Wrap(ErrHandlerAlreadyRegistered, "partition initializing")
		}
		host.onInitializing = handler
		return nil
	}
}

// WithPartitionClosingHandler registers the handler called after a closing partition has been drained. Only one
// handler may be registered.
func WithPartitionClosingHandler(handler PartitionClosingHandler) EventProcessorHostOption {
	return func(host *EventProcessorHost) error {
		if handler == nil {
			return errors.Wrap(ErrNilHandler, "partition closing")
		}
		if host.onClosing != nil {
			return errors.Wrap(ErrHandlerAlreadyRegistered, "partition closing")
		}
		host.onClosing = handler
		return nil
	}
}

// WithCheckpointErrorHandler registers the handler notified when a checkpoint write exhausts its attempts
func WithCheckpointErrorHandler(handler CheckpointErrorHandler) EventProcessorHostOption {
	return func(host *EventProcessorHost) error {
		if handler == nil {
			return errors.Wrap(ErrNilHandler, "checkpoint error")
		}
		if host.onCheckpointError != nil {
			return errors.Wrap(ErrHandlerAlreadyRegistered, "checkpoint error")
		}
		host.onCheckpointError = handler
		return nil
	}
}
