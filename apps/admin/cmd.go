package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/tribunal/apps"
	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/proposal"
)

var isTerminalFunc = term.IsTerminal // mockable

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	out    io.Writer

	// openStore is only called by the commands that need the proposals.
	openStore func(ctx context.Context) (core.KVStore, error)
	store     core.KVStore
	svc       *proposal.Service
}

func newCommandLine(conf *core.Config, logger core.Logger, out io.Writer) *commandLine {
	return &commandLine{
		conf:   conf,
		logger: logger,
		out:    out,
		openStore: func(ctx context.Context) (core.KVStore, error) {
			return apps.OpenStore(ctx, conf, logger)
		},
	}
}

func (cli *commandLine) service(ctx context.Context) (*proposal.Service, error) {
	if cli.svc != nil {
		return cli.svc, nil
	}
	store, err := cli.openStore(ctx)
	if err != nil {
		return nil, err
	}
	cli.store = store
	// no email from the command line
	cli.svc, _ = apps.NewProposalService(cli.conf, store, cli.logger, nil)
	return cli.svc, nil
}

func (cli *commandLine) close() error {
	if cli.store == nil {
		return nil
	}
	err := cli.store.Close()
	cli.store, cli.svc = nil, nil
	return err
}

// interactive reports whether the output is a terminal, in which case tables are printed instead of JSON.
func (cli *commandLine) interactive() bool {
	f, ok := cli.out.(*os.File)
	return ok && isTerminalFunc(int(f.Fd()))
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         cli.conf.AppName + " administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.AddCommand(
		cli.migrateCmd(),
		cli.listCmd(),
		cli.rejectCmd(),
		cli.importCmd(),
		cli.tokenCmd(),
	)
	return root
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func argumentError(format string, a ...interface{}) error {
	return apps.NewArgumentError(fmt.Sprintf(format, a...))
}
