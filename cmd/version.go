package cmd

import (
	"github.com/spf13/cobra"

	"github.com/iamlens/iamlens/internal/message"
	"github.com/iamlens/iamlens/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the iamlens version",
	Run: func(cmd *cobra.Command, args []string) {
		message.Info(version.FullVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
