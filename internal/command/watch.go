package command

import (
	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/tui"
)

// NewWatchCmd creates the `ken watch [id]` command: a live bubbletea
// dashboard over the session tree, refreshing on a timer against the
// same store a concurrently running daemon writes to.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [id]",
		Short: "Open a live dashboard over the session tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			rootID := ""
			if len(args) == 1 {
				rootID = args[0]
			}

			return tui.Run(tui.Options{Store: ctx.Store, Project: ctx.Project, RootID: rootID})
		},
	}
	return cmd
}
