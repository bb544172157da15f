package main

import (
	"os"

	"github.com/aretw0/wren/internal/cli"
	"github.com/aretw0/wren/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [session-id]",
	Short: "Play a session interactively in this terminal",
	Long: `Opens a session with the in-process engine. Without a session ID a new
session is created and you are its game-master. Type exit to leave.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		participant, _ := cmd.Flags().GetString("as")
		character, _ := cmd.Flags().GetString("character")
		role, _ := cmd.Flags().GetString("role")
		stream, _ := cmd.Flags().GetBool("stream")

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		rt, _, _, err := openRuntime(sc, cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		opts := cli.PlayOptions{
			ParticipantID: participant,
			CharacterName: character,
			Role:          role,
			Render:        tui.NewRenderer(),
			StreamReplies: stream,
		}
		if len(args) == 1 {
			opts.SessionID = args[0]
		}

		out := cmd.OutOrStdout()
		tui.PrintBanner(out)
		_, err = cli.Play(sc, rt.Engine, opts, os.Stdin, out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().String("as", "local-player", "Your participant ID")
	playCmd.Flags().String("character", "", "Character name when joining")
	playCmd.Flags().String("role", "", "Role when joining (gm, player, observer)")
	playCmd.Flags().Bool("stream", true, "Print AI replies as they are generated")
}
