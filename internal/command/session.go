package command

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/observer"
)

// NewSessionCmd creates the `ken session <id>` command: every field of
// one session plus its recent events, per spec.md §4.7/§6.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session <id>",
		Short: "Show full detail for one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			detail, err := observer.SessionDetail(ctx.Store, args[0])
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(detail)
			}

			out := cmd.OutOrStdout()
			sess := detail.Session
			fmt.Fprintf(out, "id:         %s\n", sess.ID)
			fmt.Fprintf(out, "ken_path:   %s\n", sess.KenPath)
			fmt.Fprintf(out, "task:       %s\n", sess.Task)
			fmt.Fprintf(out, "status:     %s\n", sess.Status)
			fmt.Fprintf(out, "parent_id:  %s\n", sess.ParentID)
			fmt.Fprintf(out, "checkpoint: %s\n", sess.Checkpoint)
			fmt.Fprintf(out, "result:     %s\n", sess.Result)
			fmt.Fprintf(out, "created_at: %s\n", sess.CreatedAt)
			fmt.Fprintf(out, "updated_at: %s\n", sess.UpdatedAt)
			fmt.Fprintf(out, "events:     %d\n", len(detail.Events))
			for _, ev := range detail.Events {
				fmt.Fprintf(out, "  %s  %-18s %s\n", ev.Timestamp.Format("2006-01-02T15:04:05"), ev.Kind, ev.Data)
			}
			return nil
		},
	}
	return cmd
}
