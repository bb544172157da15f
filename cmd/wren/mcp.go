package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aretw0/wren/internal/cli"
	"github.com/aretw0/wren/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the session engine as an MCP Server, so AI agents can create,
join and play sessions through tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		rt, _, logger, err := openRuntime(sc, cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		srv := mcp.NewServer(rt.Engine, mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			// Keep stdout clean for JSON-RPC.
			log.SetOutput(os.Stderr)
			logger.Info("Starting Wren MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			return srv.ServeSSE(sc, port)
		default:
			return fmt.Errorf("unknown transport %q (use stdio or sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport type (stdio, sse)")
	mcpCmd.Flags().IntP("port", "p", 8081, "Port for SSE transport")
}
