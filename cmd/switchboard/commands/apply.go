package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

func newApplyCommand() *cobra.Command {
	var (
		ticket         string
		confirmRestart bool
		triggeredBy    string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute a staged plan",
		Long: `Apply the plan staged under an execution ticket.

Hot-swappable changes take effect immediately. Plans that include
restart-required changes are refused unless --confirm-restart acknowledges
the pending restart. A ticket is consumed by the first apply attempt,
whether it succeeds or not.`,
		Example: `  # Apply a staged plan
  switchboard apply --ticket 4f8c0f5e-9a91-42a3-b7d4-1f0d86c9a27d

  # Apply a plan that needs a backend restart
  switchboard apply --ticket 4f8c0f5e-9a91-42a3-b7d4-1f0d86c9a27d --confirm-restart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := controlplane.ApplyRequest{
				ExecutionTicket: ticket,
				ConfirmRestart:  confirmRestart,
				TriggeredBy:     triggeredBy,
			}
			var resp controlplane.ApplyResponse
			if err := newAPIClient().postJSON(cmd.Context(), "/v1/apply", req, &resp); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(resp)
			}
			renderApply(resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&ticket, "ticket", "t", "", "execution ticket from a staged plan")
	cmd.Flags().BoolVar(&confirmRestart, "confirm-restart", false, "acknowledge restart-required changes")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "actor recorded in the audit trail")
	cmd.MarkFlagRequired("ticket")

	return cmd
}

func renderApply(resp controlplane.ApplyResponse) {
	fmt.Printf("Apply %s: %s\n", resp.ApplyMode, resp.Message)
	for _, id := range resp.AppliedChanges {
		fmt.Printf("  applied %s\n", id)
	}
	for _, failure := range resp.FailedChanges {
		fmt.Printf("  failed %s\n", failure)
	}
	if len(resp.RestartRequiredServices) > 0 {
		fmt.Printf("Restart pending: %s\n", strings.Join(resp.RestartRequiredServices, ", "))
	}
}
