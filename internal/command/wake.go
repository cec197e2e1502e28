package command

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/handler"
	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/store"
)

// NewWakeCmd creates the `ken wake` command: create a root session and
// return its id, per spec.md §6.
func NewWakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wake <ken_path>",
		Short: "Create a root session for a kenning and return its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kenPath := args[0]
			if !handler.ValidKenPath(kenPath) {
				return &exitError{err: writeCommandError(cmd, fmt.Errorf("invalid ken_path: %q", kenPath)), code: 1}
			}

			task, _ := cmd.Flags().GetString("task")
			if task == "" {
				return &exitError{err: writeCommandError(cmd, fmt.Errorf("--task is required")), code: 1}
			}
			doneWhenPath, _ := cmd.Flags().GetString("done-when")

			var doneWhen *kenmodel.DoneWhen
			if doneWhenPath != "" {
				raw, err := os.ReadFile(doneWhenPath)
				if err != nil {
					return &exitError{err: writeCommandError(cmd, err), code: 1}
				}
				var dw kenmodel.DoneWhen
				if err := yaml.Unmarshal(raw, &dw); err != nil {
					return &exitError{err: writeCommandError(cmd, fmt.Errorf("parse done-when: %w", err)), code: 1}
				}
				doneWhen = &dw
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			id := core.NewSessionID()
			if err := ctx.Store.CreateSession(store.NewSessionFields{ID: id, KenPath: kenPath, Task: task, DoneWhen: doneWhen}); err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			if _, err := ctx.Store.AppendEvent(store.NewEvent{SessionID: id, Kind: kenmodel.EventSessionCreated}); err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}
			if err := ctx.Project.TouchWakeSignal(); err != nil {
				cmd.PrintErrf("warning: failed to touch wake signal: %v\n", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().String("task", "", "the task description delivered to the agent")
	cmd.Flags().String("done-when", "", "path to a YAML file describing completion criteria")
	return cmd
}
