package command

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/store"
)

// NewLogCmd creates the `ken log [id]` command: the append-only event
// log for one session, or every event system-wide if id is omitted,
// per spec.md §6.
func NewLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log [id]",
		Short: "Show the event log for a session, or the whole workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			var events []kenmodel.Event
			if len(args) == 1 {
				events, err = ctx.Store.EventsForSession(args[0])
			} else {
				events, err = allEvents(ctx.Store)
			}
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(events)
			}

			out := cmd.OutOrStdout()
			for _, ev := range events {
				fmt.Fprintf(out, "%s  %-10s %-18s %s\n", ev.Timestamp.Format("2006-01-02T15:04:05"), ev.SessionID, ev.Kind, ev.Data)
			}
			return nil
		},
	}
	return cmd
}

// allEvents concatenates every session's event log and sorts by event
// id, since the store only indexes events per-session.
func allEvents(st *store.Store) ([]kenmodel.Event, error) {
	sessions, err := st.Query(store.Filter{})
	if err != nil {
		return nil, err
	}
	var out []kenmodel.Event
	for _, sess := range sessions {
		evs, err := st.EventsForSession(sess.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
