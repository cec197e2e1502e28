package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/scheduler"
	"github.com/ken-run/ken/internal/spawner"
)

// NewDaemonCmd creates the `ken daemon` command: loop the scheduler
// forever, per spec.md §6, yielding between ticks on the wake-file
// watcher or the tick interval, whichever comes first.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler loop until interrupted",
		Long: `Run the ken scheduler forever: evaluate sleeping triggers, wake and
spawn the highest-priority pending session within the concurrency
budget, then yield until the next tick or a wake-file nudge.

Use Ctrl+C or SIGTERM to stop.`,
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

			debug, _ := cmd.Flags().GetBool("debug")
			sp := spawner.New(driver, ctx.Store)
			composer := resolveComposer(ctx)
			logger := core.NewLogger("ken", debug)
			sched := scheduler.New(ctx.Store, sp, composer, ctx.Project, logger)

			runCtx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			fmt.Fprintln(cmd.OutOrStdout(), "ken daemon started, press Ctrl+C to stop")
			if err := sched.Run(runCtx); err != nil && err != context.Canceled {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}
			sp.Wait()
			fmt.Fprintln(cmd.OutOrStdout(), "ken daemon stopped")
			return nil
		},
	}
	cmd.Flags().Bool("debug", false, "enable debug logging")
	return cmd
}
