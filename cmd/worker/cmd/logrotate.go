package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/worker-metadata/pkg/logging"
)

var logrotateDir string

var logrotateCmd = &cobra.Command{
	Use:   "logrotate",
	Short: "Print a logrotate config for serve --log-dir",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), logging.LogrotateConfig(logrotateDir, "worker"))
	},
}

func init() {
	logrotateCmd.Flags().StringVar(&logrotateDir, "log-dir", logging.DefaultLogDir, "directory passed to serve --log-dir")
	rootCmd.AddCommand(logrotateCmd)
}
