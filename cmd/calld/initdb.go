package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/ent0n29/calld/internal/calllog"
)

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the sqlite calls database",
		Long:  "Creates the calls table in the sqlite file at DB_PATH. An existing file is left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if _, err := os.Stat(cfg.DBPath); err == nil {
				fmt.Fprintf(out, "database already exists: %s\n", cfg.DBPath)
				fmt.Fprintln(out, "delete it first to recreate")
				return nil
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			backend, err := calllog.OpenSQLite(cmd.Context(), cfg.DBPath)
			if err != nil {
				return fmt.Errorf("create database: %w", err)
			}
			if err := backend.Close(); err != nil {
				return err
			}
			logger.Info("database initialized", "path", cfg.DBPath)
			fmt.Fprintf(out, "created table calls in %s\n", cfg.DBPath)
			return nil
		},
	}
}
