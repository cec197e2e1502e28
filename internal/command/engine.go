package command

import (
	"fmt"
	"strings"

	"github.com/ken-run/ken/internal/compose"
	"github.com/ken-run/ken/internal/spawner"
)

// resolveDriver builds the agent process driver from ken_config's
// agent_command entry (a single shell-splittable string, e.g.
// "claude -p -"), the black-box "Agent driver" collaborator spec.md §2
// leaves unspecified. There is no built-in default: an engine with no
// configured agent command cannot spawn anything, and process/daemon
// should say so plainly rather than silently no-op.
func resolveDriver(ctx *CommandContext) (spawner.Driver, error) {
	raw, err := ctx.Store.GetConfig("agent_command")
	if err != nil {
		return nil, fmt.Errorf("read agent_command config: %w", err)
	}
	if raw == "" {
		return nil, fmt.Errorf("no agent_command configured; set one with `ken config agent_command \"<cmd>\"`")
	}
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return nil, fmt.Errorf("agent_command is configured but empty")
	}
	return spawner.ExecDriver{Command: parts}, nil
}

// resolveComposer builds the prompt composer, preferring the mlld
// engine when the project carries a compose.mld template and falling
// back to the builtin regex substitution engine otherwise, per
// spec.md §4.3's grounding-token substitution.
func resolveComposer(ctx *CommandContext) *compose.Composer {
	engine := compose.NewMlldEngine(ctx.Project.KenDir, ctx.Project.Root)
	if engine.Available() {
		return compose.New(engine)
	}
	return compose.New(compose.BuiltinEngine{})
}
