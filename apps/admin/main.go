package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/tribunal/apps"
	"github.com/trezcool/tribunal/core"
)

func main() {
	conf := core.NewConfig()

	logger, flush, err := apps.NewLogger(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cli := newCommandLine(conf, logger, os.Stdout)
	err = cli.run(context.Background(), os.Args[1:])
	if cErr := cli.close(); cErr != nil {
		logger.Error("closing store", cErr)
	}
	flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		os.Exit(1)
	}
}
