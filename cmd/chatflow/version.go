package main

import (
	"fmt"

	"github.com/aretw0/chatflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of chatflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chatflow version %s\n", chatflow.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
