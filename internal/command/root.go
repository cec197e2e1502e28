package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "ken"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// NewRootCmd assembles every ken subcommand under the root, mirroring
// the teacher's root.go shape.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "ken - a durable workflow engine for agent sessions",
		Long:          "ken composes agents into trees of sessions that spawn, sleep on triggers, and wake each other, surviving process crashes and engine restarts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewInitCmd(),
		NewDaemonCmd(),
		NewProcessCmd(),
		NewSessionCmd(),
		NewWakeCmd(),
		NewStatusCmd(),
		NewTreeCmd(),
		NewWhyCmd(),
		NewLogCmd(),
		NewDiagnoseCmd(),
		NewRecoverCmd(),
		NewAbandonCmd(),
		NewRequestCmd(),
		NewConfigCmd(),
		NewWatchCmd(),
	)

	return cmd
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCmd(Version).Execute()
}
