package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

func newWorkflowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Workflow lifecycle operations",
		Long: `Operate on workflow executions.

Operations move a workflow through its lifecycle:
  - pause: suspend a running workflow
  - resume: continue a paused workflow
  - cancel: terminally stop a running or paused workflow
  - retry: restart a failed or cancelled workflow
  - dry-run: preview an execution without running it
  - status: show a workflow record

Refused operations are not errors. The command prints the unchanged
status with the reason the transition was not allowed.`,
	}

	cmd.AddCommand(newWorkflowPauseCommand())
	cmd.AddCommand(newWorkflowResumeCommand())
	cmd.AddCommand(newWorkflowCancelCommand())
	cmd.AddCommand(newWorkflowRetryCommand())
	cmd.AddCommand(newWorkflowDryRunCommand())
	cmd.AddCommand(newWorkflowStatusCommand())

	return cmd
}

func newWorkflowPauseCommand() *cobra.Command {
	var triggeredBy string

	cmd := &cobra.Command{
		Use:     "pause <workflow-id>",
		Short:   "Pause a running workflow",
		Args:    cobra.ExactArgs(1),
		Example: `  switchboard workflow pause 4f8c0f5e-9a91-42a3-b7d4-1f0d86c9a27d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowOperation(cmd, "pause", args[0], "", triggeredBy)
		},
	}

	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "actor recorded in the audit trail")

	return cmd
}

func newWorkflowResumeCommand() *cobra.Command {
	var triggeredBy string

	cmd := &cobra.Command{
		Use:     "resume <workflow-id>",
		Short:   "Resume a paused workflow",
		Args:    cobra.ExactArgs(1),
		Example: `  switchboard workflow resume 4f8c0f5e-9a91-42a3-b7d4-1f0d86c9a27d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowOperation(cmd, "resume", args[0], "", triggeredBy)
		},
	}

	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "actor recorded in the audit trail")

	return cmd
}

func newWorkflowCancelCommand() *cobra.Command {
	var triggeredBy string

	cmd := &cobra.Command{
		Use:     "cancel <workflow-id>",
		Short:   "Cancel a running or paused workflow",
		Args:    cobra.ExactArgs(1),
		Example: `  switchboard workflow cancel 4f8c0f5e-9a91-42a3-b7d4-1f0d86c9a27d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowOperation(cmd, "cancel", args[0], "", triggeredBy)
		},
	}

	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "actor recorded in the audit trail")

	return cmd
}

func newWorkflowRetryCommand() *cobra.Command {
	var (
		fromStep    string
		triggeredBy string
	)

	cmd := &cobra.Command{
		Use:   "retry <workflow-id>",
		Short: "Retry a failed or cancelled workflow",
		Example: `  # Retry from the beginning
  switchboard workflow retry 4f8c0f5e-9a91-42a3-b7d4-1f0d86c9a27d

  # Retry from a specific step
  switchboard workflow retry 4f8c0f5e-9a91-42a3-b7d4-1f0d86c9a27d --from-step ingest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowOperation(cmd, "retry", args[0], fromStep, triggeredBy)
		},
	}

	cmd.Flags().StringVar(&fromStep, "from-step", "", "step to resume execution from")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "actor recorded in the audit trail")

	return cmd
}

func newWorkflowDryRunCommand() *cobra.Command {
	var triggeredBy string

	cmd := &cobra.Command{
		Use:     "dry-run <workflow-id>",
		Short:   "Preview a workflow execution",
		Args:    cobra.ExactArgs(1),
		Example: `  switchboard workflow dry-run 4f8c0f5e-9a91-42a3-b7d4-1f0d86c9a27d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowOperation(cmd, "dry-run", args[0], "", triggeredBy)
		},
	}

	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "actor recorded in the audit trail")

	return cmd
}

func newWorkflowStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status <workflow-id>",
		Short:   "Show a workflow record",
		Args:    cobra.ExactArgs(1),
		Example: `  switchboard workflow status 4f8c0f5e-9a91-42a3-b7d4-1f0d86c9a27d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var wf controlplane.Workflow
			if err := newAPIClient().getJSON(cmd.Context(), "/v1/workflows/"+args[0], &wf); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(wf)
			}
			renderWorkflow(wf)
			return nil
		},
	}

	return cmd
}

func runWorkflowOperation(cmd *cobra.Command, path, workflowID, stepID, triggeredBy string) error {
	req := controlplane.WorkflowOperationRequest{
		WorkflowID:  workflowID,
		StepID:      stepID,
		TriggeredBy: triggeredBy,
	}
	var resp controlplane.WorkflowOperationResponse
	if err := newAPIClient().postJSON(cmd.Context(), "/v1/operations/"+path, req, &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Printf("Workflow %s: %s (%s)\n", resp.WorkflowID, resp.Status, resp.ReasonCode)
	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	return nil
}

func renderWorkflow(wf controlplane.Workflow) {
	fmt.Printf("Workflow %s\n", wf.ID)
	fmt.Printf("  Status:  %s\n", wf.Status)
	fmt.Printf("  Created: %s\n", wf.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Updated: %s\n", wf.UpdatedAt.Format(time.RFC3339))
	if wf.PausedAt != nil {
		by := ""
		if wf.PausedBy != "" {
			by = " by " + wf.PausedBy
		}
		fmt.Printf("  Paused:  %s%s\n", wf.PausedAt.Format(time.RFC3339), by)
	}
	if wf.CancelledAt != nil {
		fmt.Printf("  Cancelled: %s\n", wf.CancelledAt.Format(time.RFC3339))
	}
	if wf.RetriedAt != nil {
		from := ""
		if wf.RetryFromStep != "" {
			from = " from step " + wf.RetryFromStep
		}
		fmt.Printf("  Retried: %s%s\n", wf.RetriedAt.Format(time.RFC3339), from)
	}
}
