package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the current system state",
		Long: `Fetch a point-in-time snapshot of the configured stack and the health
of the services running it.`,
		Example: `  switchboard state

  # Machine-readable output
  switchboard state --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				SystemState controlplane.SystemState `json:"system_state"`
			}
			if err := newAPIClient().getJSON(cmd.Context(), "/v1/state", &resp); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(resp.SystemState)
			}
			renderState(resp.SystemState)
			return nil
		},
	}

	return cmd
}

func renderState(state controlplane.SystemState) {
	fmt.Printf("Decision strategy: %s\n", state.DecisionStrategy)
	fmt.Printf("Intent mode:       %s\n", state.IntentMode)
	fmt.Printf("Kernel:            %s\n", state.Kernel)
	fmt.Printf("Runtime:           %s (%s)\n", state.Runtime.Name, state.Runtime.Status)
	fmt.Printf("Provider:          %s (model: %s)\n", state.Provider.Name, state.Provider.Model)
	if state.EmbeddingModel != "" {
		fmt.Printf("Embedding model:   %s\n", state.EmbeddingModel)
	}
	fmt.Printf("Workflow status:   %s\n", state.WorkflowStatus)
	fmt.Printf("Active operations: %d\n", state.ActiveOperations)

	if len(state.Health) > 0 {
		names := make([]string, 0, len(state.Health))
		for name := range state.Health {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Println("Services:")
		for _, name := range names {
			health := state.Health[name]
			if health.Message != "" {
				fmt.Printf("  %s: %s (%s)\n", name, health.Status, health.Message)
			} else {
				fmt.Printf("  %s: %s\n", name, health.Status)
			}
		}
	}
}
