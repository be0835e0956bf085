package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jamsplitter/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories and external tools before running jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if jsonFlag {
				return writeJSON(cmd, results)
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, result := range results {
				marker := "ok"
				if !result.Passed {
					marker = "FAIL"
					failed++
				}
				fmt.Fprintf(out, "[%4s] %s: %s\n", marker, result.Name, result.Detail)
			}
			if failed > 0 {
				return fmt.Errorf("%d preflight check(s) failed", failed)
			}
			fmt.Fprintln(out, "All preflight checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable output")
	return cmd
}
