package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/worker-metadata/pkg/handlers"
)

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List registered handlers",
	RunE: func(cmd *cobra.Command, args []string) error {
		configured := viper.GetString("handler")
		for _, name := range handlers.NewRegistry().Names() {
			marker := " "
			if name == configured {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(handlersCmd)
}
