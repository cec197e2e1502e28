package command

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/store"
)

// NewStatusCmd creates the `ken status` command: a count of sessions
// per status, the quickest health check spec.md §6 offers.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize session counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			sessions, err := ctx.Store.Query(store.Filter{})
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}

			counts := map[kenmodel.Status]int{}
			for _, sess := range sessions {
				counts[sess.Status]++
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(counts)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d sessions total\n", len(sessions))
			for _, st := range []kenmodel.Status{
				kenmodel.StatusPending, kenmodel.StatusWaking, kenmodel.StatusActive,
				kenmodel.StatusSleeping, kenmodel.StatusComplete, kenmodel.StatusFailed,
			} {
				fmt.Fprintf(out, "  %-10s %d\n", st, counts[st])
			}
			return nil
		},
	}
	return cmd
}
