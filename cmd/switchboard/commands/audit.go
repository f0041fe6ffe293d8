package commands

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openswitchboard/switchboard/pkg/api"
	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

func newAuditCommand() *cobra.Command {
	var (
		operationType string
		resourceType  string
		triggeredBy   string
		result        string
		page          int
		pageSize      int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded control plane operations",
		Long: `Query the audit trail. Entries are returned newest first; filters are
combined, so every set filter must match.`,
		Example: `  # Most recent operations
  switchboard audit

  # Everything one actor did
  switchboard audit --triggered-by alice

  # Failed applies only
  switchboard audit --operation-type apply --result failure`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if operationType != "" {
				query.Set("operation_type", operationType)
			}
			if resourceType != "" {
				query.Set("resource_type", resourceType)
			}
			if triggeredBy != "" {
				query.Set("triggered_by", triggeredBy)
			}
			if result != "" {
				query.Set("result", result)
			}
			query.Set("page", strconv.Itoa(page))
			query.Set("page_size", strconv.Itoa(pageSize))

			var resp api.AuditPage
			if err := newAPIClient().getJSON(cmd.Context(), "/v1/audit?"+query.Encode(), &resp); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(resp)
			}
			renderAudit(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&operationType, "operation-type", "", "filter by operation type (plan, apply, pause, ...)")
	cmd.Flags().StringVar(&resourceType, "resource-type", "", "filter by resource type")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "filter by actor")
	cmd.Flags().StringVar(&result, "result", "", "filter by result (success, failure, rejected)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "entries per page")

	return cmd
}

func renderAudit(page api.AuditPage) {
	fmt.Printf("Showing %d of %d entries (page %d)\n", len(page.Entries), page.TotalCount, page.Page)
	for _, entry := range page.Entries {
		fmt.Printf("%s  %-9s %-8s %s\n",
			entry.Timestamp.Format(time.RFC3339), entry.OperationType, entry.Result, auditSubject(entry))
		if entry.ErrorMessage != "" {
			fmt.Printf("    %s\n", entry.ErrorMessage)
		}
	}
}

// auditSubject describes what an entry acted on, preferring the resource
// over the actor when both are recorded.
func auditSubject(entry controlplane.AuditEntry) string {
	subject := ""
	if entry.ResourceType != "" {
		subject = string(entry.ResourceType)
		if entry.ResourceID != "" {
			subject += "/" + entry.ResourceID
		}
	}
	if entry.TriggeredBy != "" {
		if subject == "" {
			return "by " + entry.TriggeredBy
		}
		subject += " (by " + entry.TriggeredBy + ")"
	}
	return subject
}
