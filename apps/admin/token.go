package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	echoapi "github.com/trezcool/tribunal/apps/api/echo"
	"github.com/trezcool/tribunal/core"
)

// tokenCmd signs API tokens; identities normally come from the identity provider.
func (cli *commandLine) tokenCmd() *cobra.Command {
	var (
		author core.Author
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed API token for an identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			author.ID = core.CleanString(author.ID)
			if author.ID == "" {
				return argumentError("an id is required")
			}
			if ttl <= 0 {
				return argumentError("ttl must be positive")
			}
			token, err := echoapi.GenerateToken(cli.conf.SecretKey, echoapi.NewClaims(cli.conf.AppName, author, ttl))
			if err != nil {
				return err
			}
			fmt.Fprintln(cli.out, token)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&author.ID, "id", "", "Subject of the token")
	flags.StringVar(&author.Name, "name", "", "Display name")
	flags.IntVar(&author.Level, "level", 0, "Level of the identity")
	flags.StringVar(&author.Email, "email", "", "Email address")
	flags.DurationVar(&ttl, "ttl", 24*time.Hour, "Validity of the token")
	return cmd
}
