package command

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/observer"
)

// NewDiagnoseCmd creates the `ken diagnose` command: stuck-active,
// stale-pending, and referential-integrity warnings, per spec.md
// §4.7/§6.
func NewDiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Report stuck sessions and integrity warnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			findings, err := observer.Diagnose(ctx.Store, observer.DefaultThresholds)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(findings)
			}

			out := cmd.OutOrStdout()
			if len(findings) == 0 {
				fmt.Fprintln(out, "no issues found")
				return nil
			}
			for _, f := range findings {
				fmt.Fprintf(out, "%s: %s\n", f.SessionID, f.Message)
			}
			return nil
		},
	}
	return cmd
}
