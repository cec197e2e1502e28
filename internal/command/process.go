package command

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/scheduler"
	"github.com/ken-run/ken/internal/spawner"
)

// NewProcessCmd creates the `ken process` command: run one scheduler
// iteration to completion, per spec.md §4.6 and §6.
func NewProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one scheduler iteration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			driver, err := resolveDriver(ctx)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 1}
			}

			sp := spawner.New(driver, ctx.Store)
			composer := resolveComposer(ctx)
			logger := core.NewLogger("ken", false)
			sched := scheduler.New(ctx.Store, sp, composer, ctx.Project, logger)

			spawned, err := sched.Tick(context.Background())
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}
			if spawned {
				fmt.Fprintln(cmd.OutOrStdout(), "spawned one session")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to do")
			}
			return nil
		},
	}
	return cmd
}
