package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configSources []string
	serverURL     string
	jsonOutput    bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "switchboard",
		Short: "Switchboard - Configuration Control Plane",
		Long: `Switchboard is the configuration control plane for a local AI runtime.

It validates requested configuration changes against a compatibility
matrix, stages them under execution tickets, applies them with automatic
rollback on failure, and drives workflow lifecycles through a fixed state
machine. Every operation is audited.

Features:
  - Plan/apply two-phase configuration changes
  - Compatibility validation across the kernel/runtime/provider stack
  - Typed settings via CUE
  - Policy review via OPA/rego
  - Workflow lifecycle state machine
  - In-memory audit trail with retention`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringSliceVarP(&configSources, "config", "c", nil, "settings file or directory (repeatable)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "control plane base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newStateCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newWorkflowCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
