package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&runCmd{}, "")
	commander.Register(&tokensCmd{}, "catalog")
	commander.Register(&currenciesCmd{}, "catalog")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
