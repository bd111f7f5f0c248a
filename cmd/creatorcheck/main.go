package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/ppiankov/creatorcheck/internal/cli"
)

func main() {
	// fang adds styled help and errors, completions, manpages and --version
	if err := fang.Execute(
		context.Background(),
		cli.Root(),
		fang.WithVersion(cli.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
