package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/digitalkontroll/qaregister/internal/mcp"
	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var projectID, tenantID, category string
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, or the questions of one project",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := ctx.newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if projectID == "" {
				projects, err := a.Projects.List(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				if len(projects) == 0 {
					fmt.Fprintln(out, "No projects")
					return nil
				}
				rows := make([][]string, 0, len(projects))
				for _, p := range projects {
					rows = append(rows, []string{
						p.ID,
						p.Name,
						p.RootPath,
						strconv.Itoa(p.QuestionCount),
						strconv.Itoa(p.OpenQuestions),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Name", "Root", "Questions", "Open"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			}

			opts := qa.ListOptions{ProjectID: projectID, Category: category}
			for _, raw := range statuses {
				status, ok := qa.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				opts.Statuses = append(opts.Statuses, status)
			}
			refs, err := a.Questions.List(cmd.Context(), tenantID, opts)
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				fmt.Fprintln(out, "No questions")
				return nil
			}
			rows := make([][]string, 0, len(refs))
			for _, ref := range refs {
				rows = append(rows, []string{ref.FormattedNumber, ref.Category, truncate(ref.Title, 60), ref.Status.Label()})
			}
			fmt.Fprintln(out, renderTable([]string{"No.", "Category", "Title", "Status"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project ID (omit to list projects)")
	cmd.Flags().StringVar(&tenantID, "tenant", mcp.DefaultTenant, "Tenant ID")
	cmd.Flags().StringVar(&category, "category", "", "Only list this category")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only list these statuses")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
