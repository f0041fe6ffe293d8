package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

func newPlanCommand() *cobra.Command {
	var (
		changesFile string
		dryRun      bool
		force       bool
		triggeredBy string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate and stage a change batch",
		Long: `Submit a batch of configuration changes for validation and staging.

Every change is validated, classified as hot-swap or restart-required, and
checked against the compatibility matrix. A valid plan is staged under an
execution ticket that 'apply' consumes exactly once. Invalid plans are staged
too, so applying one returns the stored rejection instead of a second plan.`,
		Example: `  # Stage a change batch and print the execution ticket
  switchboard plan -f changes.yaml

  # Validate and classify without staging anything
  switchboard plan -f changes.yaml --dry-run

  # Plan despite a blocking policy verdict
  switchboard plan -f changes.yaml --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := loadChangesFile(changesFile)
			if err != nil {
				return err
			}

			req := controlplane.PlanRequest{
				Changes:     changes,
				DryRun:      dryRun,
				Force:       force,
				TriggeredBy: triggeredBy,
			}
			var resp controlplane.PlanResponse
			if err := newAPIClient().postJSON(cmd.Context(), "/v1/plan", req, &resp); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(resp)
			}
			renderPlan(resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&changesFile, "file", "f", "", "changes file (YAML)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and classify without staging")
	cmd.Flags().BoolVar(&force, "force", false, "proceed past blocking policy verdicts")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "actor recorded in the audit trail")
	cmd.MarkFlagRequired("file")

	return cmd
}

func renderPlan(resp controlplane.PlanResponse) {
	verdict := "valid"
	if !resp.Valid {
		verdict = "invalid"
	}
	fmt.Printf("Plan %s: %s\n", verdict, resp.Message)
	if resp.DryRun {
		fmt.Println("Dry run: nothing was staged")
	} else {
		fmt.Printf("Execution ticket: %s\n", resp.ExecutionTicket)
	}

	if len(resp.PlannedChanges) > 0 {
		fmt.Println("Changes:")
		for _, change := range resp.PlannedChanges {
			fmt.Printf("  %s %s/%s: %s\n", change.Action, change.ResourceType, change.ResourceID, change.ApplyMode)
			if change.Message != "" {
				fmt.Printf("    %s\n", change.Message)
			}
		}
	}
	for _, issue := range resp.Compatibility.Issues {
		fmt.Printf("Issue: %s\n", issue)
	}
	for _, warning := range resp.Compatibility.Warnings {
		fmt.Printf("Warning: %s\n", warning)
	}
	if len(resp.RestartRequiredServices) > 0 {
		fmt.Printf("Restart required: %s\n", strings.Join(resp.RestartRequiredServices, ", "))
	}

	if resp.Valid && !resp.DryRun {
		fmt.Printf("\nApply with: switchboard apply --ticket %s\n", resp.ExecutionTicket)
	}
}
