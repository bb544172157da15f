package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/wren/internal/cli"
	"github.com/aretw0/wren/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wren",
	Short: "Wren runs collaborative tabletop scene sessions",
	Long: `Wren hosts shared scene sessions: a game-master and players drive an
append-only scene log with slash commands, dice and an AI narrator.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store", "", "Store driver (memory, sqlite)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")
}

// loadConfig resolves defaults, file, environment and flags, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Driver = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Store.Path = v
		if !cmd.Flags().Changed("store") {
			cfg.Store.Driver = config.DriverSQLite
		}
	}
	return cfg, cfg.Validate()
}

// openRuntime builds the engine for commands that run it in-process.
func openRuntime(ctx context.Context, cmd *cobra.Command) (*cli.Runtime, config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, nil, err
	}
	logger := cli.NewLogger(cfg.Log)
	rt, err := cli.NewRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, cfg, logger, fmt.Errorf("error initializing wren: %w", err)
	}
	return rt, cfg, logger, nil
}
