package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/store"
)

// NewInitCmd creates the `ken init` command: create .ken/ and
// initialise the store, per spec.md §6.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a ken workspace in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			project, err := core.InitProject("", force)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 1}
			}
			st, err := store.Open(project)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}
			defer st.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Initialized ken workspace at %s\n", project.KenDir)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "reinitialize, replacing the existing database")
	return cmd
}
