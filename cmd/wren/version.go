package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/wren"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of wren",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wren version %s\n", strings.TrimSpace(wren.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
