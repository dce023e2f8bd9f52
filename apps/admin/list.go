package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/proposal"
)

func (cli *commandLine) listCmd() *cobra.Command {
	var (
		status, category, author, search, ordering string
		hierarchy                                  int
		asJSON                                     bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List proposals",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := proposal.QueryFilter{
				Status:          proposal.Status(core.CleanString(status, true /* lower */)),
				Category:        proposal.Category(core.CleanString(category, true /* lower */)),
				AuthorID:        core.CleanString(author),
				TargetHierarchy: hierarchy,
				Search:          search,
				Orderings:       core.ParseOrderings(ordering),
			}
			if filter.Status != "" && !filter.Status.Valid() {
				return argumentError("unknown status %q", status)
			}
			if filter.Category != "" && !filter.Category.Valid() {
				return argumentError("unknown category %q", category)
			}

			svc, err := cli.service(cmd.Context())
			if err != nil {
				return err
			}
			proposals, err := svc.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON || !cli.interactive() {
				enc := json.NewEncoder(cli.out)
				enc.SetIndent("", "  ")
				return enc.Encode(proposals)
			}
			cli.printProposals(proposals)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&status, "status", "s", "", "Filter by status (draft, pending, approved, rejected)")
	flags.StringVarP(&category, "category", "c", "", "Filter by category (theoretical, practical, checkpoint)")
	flags.StringVarP(&author, "author", "a", "", "Filter by author ID")
	flags.IntVar(&hierarchy, "hierarchy", 0, "Filter by target hierarchy")
	flags.StringVar(&search, "search", "", "Search titles and descriptions")
	flags.StringVarP(&ordering, "ordering", "o", "", "Comma separated fields, prefixed with - for descending order, eg: -submittedAt,title")
	flags.BoolVar(&asJSON, "json", false, "Print JSON even on a terminal")
	return cmd
}

func (cli *commandLine) printProposals(proposals []proposal.Proposal) {
	if len(proposals) == 0 {
		fmt.Fprintln(cli.out, "No proposals found")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(cli.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Category", "H", "Author", "Status", "Votes", "Updated"})
	for _, p := range proposals {
		votes := ""
		if p.Status != proposal.StatusDraft {
			votes = fmt.Sprintf("+%d -%d /%d", len(p.Votes.Approvals), len(p.Votes.Rejections), len(p.Votes.Maestros))
		}
		t.AppendRow(table.Row{
			p.ID, truncate(p.ResolvedTitle(), 40), p.Category, p.TargetHierarchy,
			p.AuthorName, p.Status, votes, p.UpdatedAt.Format(time.RFC3339),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(proposals)})
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
