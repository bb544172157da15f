package main

import (
	"github.com/aretw0/wren/internal/cli"
	"github.com/aretw0/wren/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:   "tail <session-id>",
	Short: "Follow a session's change feed on a running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		participant, _ := cmd.Flags().GetString("as")
		cursor, _ := cmd.Flags().GetString("cursor")

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		return cli.Tail(sc, cli.TailOptions{
			BaseURL:       server,
			SessionID:     args[0],
			ParticipantID: participant,
			Cursor:        cursor,
			Render:        tui.NewRenderer(),
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().StringP("server", "s", "http://localhost:8080", "Base URL of the wren server")
	tailCmd.Flags().String("as", "", "Participant ID to observe as")
	tailCmd.Flags().String("cursor", "", "Resume after this cursor")
	tailCmd.MarkFlagRequired("as")
}
