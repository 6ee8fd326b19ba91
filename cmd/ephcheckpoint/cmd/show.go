package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show [partitionID...]",
	Short: "Print the stored checkpoint of each partition",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("at least one partition ID is required")
		}
		return checkHubFlags()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		persister, closer, err := newPersister(ctx)
		if err != nil {
			return err
		}
		defer closer()

		return showCheckpoints(ctx, cmd.OutOrStdout(), persister, args)
	},
}

func showCheckpoints(ctx context.Context, out io.Writer, persister persist.CheckpointPersister, partitionIDs []string) error {
	enc := json.NewEncoder(out)
	for _, partitionID := range partitionIDs {
		checkpoint, err := persister.Read(ctx, namespace, hubName, consumerGroup, partitionID)
		if errors.Is(err, persist.ErrNotFound) {
			fmt.Fprintf(out, "partition %s: no checkpoint\n", partitionID)
			continue
		}
		if err != nil {
			log.WithField("partitionID", partitionID).Errorln(err)
			return err
		}

		fmt.Fprintf(out, "partition %s: ", partitionID)
		if err := enc.Encode(checkpoint); err != nil {
			return err
		}
	}
	return nil
}
