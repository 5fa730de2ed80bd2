// Command ndwctl is an operator tool for the archiver's queues.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "ndwctl",
	Short:        "Operate the NDW archiver",
	Long:         "Feed records into the queues consumed by the NDW archiver",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
