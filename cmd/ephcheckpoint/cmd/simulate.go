package cmd

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
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Azure/azure-event-hubs-processor-go"
	"github.com/Azure/azure-event-hubs-processor-go/eph"
	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

type (
	simulation struct {
		partitions   int
		events       int
		messageCount int
		interval     time.Duration
		pace         time.Duration
		handOff      bool
	}
)

var (
	sim simulation

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run an event processor host over synthetic partitions and report the checkpoints it persists",
		Args: func(cmd *cobra.Command, args []string) error {
			if sim.partitions < 1 {
				return errors.New("partitions must be at least 1")
			}
			if sim.events < 0 {
				return errors.New("events must not be negative")
			}
			return checkHubFlags()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			persister, closer, err := newPersister(ctx)
			if err != nil {
				return err
			}
			defer closer()

			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := eph.ConfigFromEnvironment(files...)
			if err != nil {
				return err
			}

			if err := sim.run(ctx, cfg, persister); err != nil {
				return err
			}
			return showCheckpoints(ctx, cmd.OutOrStdout(), persister, sim.partitionIDs())
		},
	}
)

func init() {
	simulateCmd.Flags().IntVar(&sim.partitions, "partitions", 4, "number of partitions to own")
	simulateCmd.Flags().IntVar(&sim.events, "events", 1000, "events to process per partition")
	simulateCmd.Flags().IntVar(&sim.messageCount, "message-count", 0, "checkpoint message count, overrides EPH_CHECKPOINT_MESSAGE_COUNT")
	simulateCmd.Flags().DurationVar(&sim.interval, "interval", 0, "checkpoint interval, overrides EPH_CHECKPOINT_INTERVAL")
	simulateCmd.Flags().DurationVar(&sim.pace, "pace", 0, "delay between events of a partition")
	simulateCmd.Flags().BoolVar(&sim.handOff, "hand-off", false, "lose ownership of each partition at the end instead of shutting down")
	rootCmd.AddCommand(simulateCmd)
}

func (s simulation) partitionIDs() []string {
	ids := make([]string, s.partitions)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return ids
}

func (s simulation) run(ctx context.Context, cfg eph.Config, persister persist.CheckpointPersister) error {
	opts := []eph.EventProcessorHostOption{
		eph.WithConfig(cfg),
		eph.WithConsumerGroup(consumerGroup),
		eph.WithCheckpointErrorHandler(func(partitionID string, checkpoint persist.Checkpoint, err error) {
			log.WithFields(log.Fields{
				"partitionID":    partitionID,
				"sequenceNumber": checkpoint.SequenceNumber,
			}).Warnf("checkpoint write failed: %v", err)
		}),
	}
	if s.messageCount > 0 {
		opts = append(opts, eph.WithCheckpointMessageCount(s.messageCount))
	}
	if s.interval > 0 {
		opts = append(opts, eph.WithCheckpointInterval(s.interval))
	}

	checkpointer := eph.NewPersisterCheckpointer(persister, namespace, hubName, consumerGroup)
	host, err := eph.New(checkpointer, opts...)
	if err != nil {
		return err
	}

	var processed int64
	if _, err := host.Receive(func(ctx context.Context, event *eventhub.Event) error {
		atomic.AddInt64(&processed, 1)
		return nil
	}); err != nil {
		return err
	}

	if err := host.StartNonBlocking(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout+time.Second)
		defer cancel()
		if err := host.Close(closeCtx); err != nil {
			log.Errorln(err)
		}
		log.WithField("processed", atomic.LoadInt64(&processed)).Info("simulation finished")
	}()

	notifications := make(chan eph.PartitionNotification)
	lifecycleCtx, stopLifecycle := context.WithCancel(ctx)
	defer stopLifecycle()
	go func() {
		_ = host.RunLifecycle(lifecycleCtx, notifications)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, partitionID := range s.partitionIDs() {
		partitionID := partitionID
		g.Go(func() error {
			return s.runPartition(gctx, host, notifications, partitionID)
		})
	}
	return g.Wait()
}

func (s simulation) runPartition(ctx context.Context, host *eph.EventProcessorHost, notifications chan<- eph.PartitionNotification, partitionID string) error {
	n, reply := eph.NewInitializingNotification(partitionID, persist.NewCheckpointFromStartOfStream())
	result, err := notify(ctx, notifications, n, reply)
	if err != nil {
		return err
	}

	next := result.StartingPosition.SequenceNumber + 1
	log.WithFields(log.Fields{
		"partitionID": partitionID,
		"from":        next,
	}).Debug("partition owned")

	for i := 0; i < s.events; i++ {
		seq := next + int64(i)
		event := eventhub.NewReceivedEvent([]byte("simulated"), seq*100, seq, time.Now())
		if err := host.ProcessEvent(ctx, partitionID, event); err != nil {
			return err
		}
		if s.pace > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.pace):
			}
		}
	}

	if !s.handOff {
		return nil
	}
	n, reply = eph.NewClosingNotification(partitionID, eph.CloseReasonOwnershipLost)
	_, err = notify(ctx, notifications, n, reply)
	return err
}

func notify(ctx context.Context, notifications chan<- eph.PartitionNotification, n eph.PartitionNotification, reply <-chan eph.PartitionNotificationResult) (eph.PartitionNotificationResult, error) {
	select {
	case notifications <- n:
	case <-ctx.Done():
		return eph.PartitionNotificationResult{}, ctx.Err()
	}

	select {
	case result := <-reply:
		return result, result.Err
	case <-ctx.Done():
		return eph.PartitionNotificationResult{}, ctx.Err()
	}
}
