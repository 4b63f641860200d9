package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/calld/internal/app"
)

// errCallFailed exits non-zero after the error envelope was printed.
var errCallFailed = errors.New("call failed")

func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <expr>",
		Short: "Dispatch one call and print the result envelope",
		Long:  `Dispatch one call such as 'cat.walk("tomy")' and print {"success": ...} or {"error": ...}. The call is recorded like any other.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			res, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			env := res.Dispatcher.Execute(cmd.Context(), strings.Join(args, " "))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(env); err != nil {
				return err
			}
			if env.Failed() {
				return errCallFailed
			}
			return nil
		},
	}
}
