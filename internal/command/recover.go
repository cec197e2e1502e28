package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/store"
)

// NewRecoverCmd creates the `ken recover <id>` command: the operator
// override of spec.md §5's recovery model. A session that was marked
// failed because its agent process was lost (no live child, no
// terminal request) is returned to pending with its last checkpoint
// intact, so the scheduler re-spawns it with a "recover" marker.
func NewRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <id>",
		Short: "Re-queue a failed session for a fresh agent spawn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			id := args[0]
			sess, err := ctx.Store.GetSession(id)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			if sess.Status != kenmodel.StatusFailed {
				return &exitError{err: writeCommandError(cmd, fmt.Errorf("session %s is not failed (status=%s)", id, sess.Status)), code: 4}
			}

			pending := kenmodel.StatusPending
			if err := ctx.Store.UpdateSession(id, store.Patch{Status: &pending, AllowAnyTransition: true}); err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}
			if _, err := ctx.Store.AppendEvent(store.NewEvent{SessionID: id, Kind: kenmodel.EventRecovered}); err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}
			if err := ctx.Project.TouchWakeSignal(); err != nil {
				cmd.PrintErrf("warning: failed to touch wake signal: %v\n", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s requeued for recovery\n", id)
			return nil
		},
	}
	return cmd
}
