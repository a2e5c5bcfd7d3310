package main

import (
	"fmt"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/mcp"
	"github.com/digitalkontroll/qaregister/internal/register"
	"github.com/spf13/cobra"
)

func newRebuildCommand(ctx *commandContext) *cobra.Command {
	var projectID, tenantID string
	var all bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild register workbooks now, bypassing the sync queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" && !all {
				return fmt.Errorf("either --project or --all is required")
			}
			a, _, err := ctx.newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			ids := []string{projectID}
			if all {
				projects, err := a.Projects.List(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				ids = ids[:0]
				for _, p := range projects {
					ids = append(ids, p.ID)
				}
			}

			var failed int
			for _, id := range ids {
				key := project.Key{TenantID: tenantID, ProjectID: id}
				if err := a.Rebuild(cmd.Context(), key); err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: failed (%s): %v\n", id, register.Classify(err), err)
					continue
				}
				state, err := a.SyncState.GetSyncState(cmd.Context(), key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: rebuilt %s\n", id, state.CanonicalPath)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d rebuilds failed", failed, len(ids))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project ID")
	cmd.Flags().BoolVar(&all, "all", false, "Rebuild every project of the tenant")
	cmd.Flags().StringVar(&tenantID, "tenant", mcp.DefaultTenant, "Tenant ID")
	return cmd
}
