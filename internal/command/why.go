package command

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/observer"
)

// NewWhyCmd creates the `ken why <id>` command: the blocker chain for
// a sleeping session, per spec.md §4.7/§6.
func NewWhyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "why <id>",
		Short: "Explain what a sleeping session is waiting on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			blockers, err := observer.Why(ctx.Store, args[0])
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(blockers)
			}

			out := cmd.OutOrStdout()
			if len(blockers) == 0 {
				fmt.Fprintln(out, "no unsatisfied blockers (session is not sleeping, or its trigger has no live references)")
				return nil
			}
			printBlockers(out, blockers, 0)
			return nil
		},
	}
	return cmd
}

func printBlockers(out io.Writer, blockers []observer.Blocker, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	for _, b := range blockers {
		fmt.Fprintf(out, "%s%s [%s] %s\n", indent, b.SessionID, b.Status, b.KenPath)
		if len(b.Blockers) > 0 {
			printBlockers(out, b.Blockers, depth+1)
		}
	}
}
