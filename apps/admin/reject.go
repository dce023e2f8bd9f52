package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trezcool/tribunal/core"
)

func (cli *commandLine) rejectCmd() *cobra.Command {
	var (
		reviewer core.Reviewer
		reason   string
	)
	cmd := &cobra.Command{
		Use:   "reject ID",
		Short: "Reject a pending proposal, whatever its votes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if core.CleanString(reviewer.ID) == "" {
				return argumentError("a reviewer is required")
			}
			svc, err := cli.service(cmd.Context())
			if err != nil {
				return err
			}
			p, err := svc.Reject(cmd.Context(), args[0], reviewer, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "%s %q is %s\n", p.ID, p.ResolvedTitle(), p.Status)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&reviewer.ID, "reviewer", "", "ID of the reviewer rejecting the proposal")
	flags.StringVar(&reviewer.Name, "name", "", "Name of the reviewer")
	flags.IntVar(&reviewer.Level, "level", 0, "Level of the reviewer")
	flags.StringVarP(&reason, "reason", "r", "", "Why the proposal is rejected")
	return cmd
}
