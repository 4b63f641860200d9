package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ent0n29/calld/internal/config"
	"github.com/ent0n29/calld/internal/observability"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errCallFailed) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "calld",
		Short: "Dispatch module.function(args) calls to hot-reloaded handler modules",
		// Running calld with no subcommand starts the server.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (.toml or .yaml); overrides APP_CONFIG_FILE")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCallCmd())
	rootCmd.AddCommand(newModulesCmd())
	rootCmd.AddCommand(newInitDBCmd())
	return rootCmd
}

// loadConfig resolves configuration and installs the default logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	var (
		cfg config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	level, err := observability.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := observability.NewLogger(os.Stderr, level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
