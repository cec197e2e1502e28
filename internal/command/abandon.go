package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/store"
)

// NewAbandonCmd creates the `ken abandon <id> --reason <string>`
// command: the operator-issued stop of spec.md §5's cancellation
// model, for a stuck agent process the engine will not kill
// automatically.
func NewAbandonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abandon <id>",
		Short: "Mark a session failed and synthesize its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			if reason == "" {
				reason = "abandoned by operator"
			}

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
			if sess.Status.Terminal() {
				return &exitError{err: writeCommandError(cmd, fmt.Errorf("session %s is already terminal (status=%s)", id, sess.Status)), code: 4}
			}

			failed := kenmodel.StatusFailed
			if err := ctx.Store.UpdateSession(id, store.Patch{Status: &failed, Result: &reason, AllowAnyTransition: true}); err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}
			if _, err := ctx.Store.AppendEvent(store.NewEvent{SessionID: id, Kind: kenmodel.EventFailed, Data: reason}); err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s abandoned: %s\n", id, reason)
			return nil
		},
	}
	cmd.Flags().String("reason", "", "reason recorded as the session's synthetic result")
	return cmd
}
