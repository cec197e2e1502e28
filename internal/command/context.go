package command

import (
	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/store"
)

// CommandContext provides shared command resources, mirroring the
// teacher's CommandContext: a live store handle plus the resolved
// project and output-mode flags every subcommand needs.
type CommandContext struct {
	Store    *store.Store
	Project  core.Project
	JSONMode bool
}

// GetContext discovers the ken project rooted at or above the current
// directory and opens its store, matching the teacher's GetContext
// project-discovery-then-open shape.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	jsonMode, _ := cmd.Flags().GetBool("json")

	project, err := core.DiscoverProject("")
	if err != nil {
		return nil, err
	}
	st, err := store.Open(project)
	if err != nil {
		return nil, err
	}

	return &CommandContext{Store: st, Project: project, JSONMode: jsonMode}, nil
}
