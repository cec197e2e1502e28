package command

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/observer"
)

// NewTreeCmd creates the `ken tree [id]` command: the subtree rooted
// at id, or every root session if id is omitted, per spec.md §4.7/§6.
func NewTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree [id]",
		Short: "Show the session tree rooted at id, or the whole forest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			id := ""
			if len(args) == 1 {
				id = args[0]
			}

			forest, err := observer.Tree(ctx.Store, id)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(forest)
			}

			out := cmd.OutOrStdout()
			for _, root := range forest {
				printTreeNode(out, root, 0)
			}
			return nil
		},
	}
	return cmd
}

func printTreeNode(out io.Writer, node *observer.Node, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	line := fmt.Sprintf("%s%s  [%s]  %s  age=%s", indent, node.Session.ID, node.Session.Status, node.Session.KenPath, node.Age.Round(1e9))
	if node.TriggerSummary != "" {
		line += "  trigger=" + node.TriggerSummary
	}
	fmt.Fprintln(out, line)
	for _, child := range node.Children {
		printTreeNode(out, child, depth+1)
	}
}
