package command

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/store"
)

// exitError pairs an error with the exit code spec.md §6 assigns it:
// 1 user error, 2 store error, 3 not-found, 4 invalid-state.
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode classifies err into spec.md §6's exit code taxonomy.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return 3
	case errors.Is(err, store.ErrIllegalTransition), errors.Is(err, store.ErrCollision):
		return 4
	case errors.Is(err, core.ErrNotInitialized):
		return 1
	default:
		return 2
	}
}

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	return err
}
