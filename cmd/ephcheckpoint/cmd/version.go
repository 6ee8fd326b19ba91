package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Azure/azure-event-hubs-processor-go/eph"
)

var (
	// GitCommit is the git reference injected at build
	GitCommit string
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the library version and git ref",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", eph.Version, GitCommit)
	},
}
