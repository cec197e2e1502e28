package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/handler"
)

// NewRequestCmd creates the `ken request [json]` command: forward one
// raw agent request line to the Request Handler, the CLI-forwarded
// channel spec.md §6 names as the baseline every agent driver can use
// when a socket or MCP channel isn't preferred. The request reads its
// argument from argv if given, else from stdin, matching the Rust
// prototype's dual input path.
func NewRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request [json]",
		Short: "Forward a raw agent request to the handler",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: ExitCode(err)}
			}
			defer ctx.Store.Close()

			raw, err := readRequestPayload(args)
			if err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 1}
			}

			h := handler.New(ctx.Store)
			// No independent requester identity exists on this channel;
			// the envelope's own session_id is trusted, same as the
			// teacher's raw-forward commands trust their caller's flags.
			resp := h.Handle("", raw)

			enc := json.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(resp); err != nil {
				return &exitError{err: writeCommandError(cmd, err), code: 2}
			}
			if !resp.OK {
				return &exitError{err: fmt.Errorf("%s", resp.Error), code: 4}
			}
			if err := ctx.Project.TouchWakeSignal(); err != nil {
				cmd.PrintErrf("warning: failed to touch wake signal: %v\n", err)
			}
			return nil
		},
	}
	return cmd
}

func readRequestPayload(args []string) ([]byte, error) {
	if len(args) > 0 {
		return []byte(args[0]), nil
	}
	if isTTY(os.Stdin) {
		return nil, fmt.Errorf("no input provided; pass the request JSON as an argument or pipe it on stdin")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("input is empty")
	}
	return data, nil
}

func isTTY(file *os.File) bool {
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
