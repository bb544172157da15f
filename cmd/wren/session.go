package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored sessions",
	Long:  `List, inspect and close sessions in the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions, most recently active first",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, _, err := openRuntime(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		sessions, err := rt.Engine.ListSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}

		fmt.Fprintln(out, "Sessions:")
		for _, s := range sessions {
			state := "active"
			if !s.IsActive {
				state = "closed"
			}
			fmt.Fprintf(out, "- %s  %-30s %s  last active %s\n", s.ID, s.Name, state, s.LastActive.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print the snapshot of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, _, err := openRuntime(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		snap, err := rt.Engine.Snapshot(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", args[0], err)
		}
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling snapshot: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a session as its game-master",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		participant, _ := cmd.Flags().GetString("as")

		rt, _, _, err := openRuntime(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.Engine.CloseSession(cmd.Context(), args[0], participant); err != nil {
			return fmt.Errorf("error closing '%s': %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Closed session '%s'\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionCloseCmd)
	sessionCloseCmd.Flags().String("as", "", "Participant ID of the game-master")
	sessionCloseCmd.MarkFlagRequired("as")
}
