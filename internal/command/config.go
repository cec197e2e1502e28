package command

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewConfigCmd creates the `ken config [key] [value]` command,
// mirroring the teacher's config get/set/list shape over the
// workspace's ken_config table.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [key] [value]",
		Short: "Get or set workspace configuration (e.g. max_active, agent_command)",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			if len(args) == 0 {
				return &exitError{err: writeCommandError(cmd, fmt.Errorf("usage: ken config <key> [value]")), code: 1}
			}

			key := args[0]
			if len(args) == 1 {
				value, err := ctx.Store.GetConfig(key)
				if err != nil {
					return &exitError{err: writeCommandError(cmd, err), code: 2}
				}
				if ctx.JSONMode {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{key: value})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, value)
				return nil
			}

			if err := ctx.Store.SetConfig(key, args[1]); err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set %s = %s\n", key, args[1])
			return nil
		},
	}
	return cmd
}
