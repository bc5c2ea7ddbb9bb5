package main

import (
	"fmt"
	"os"

	app "github.com/agentkit-forge/agentkit/internal"
	"github.com/agentkit-forge/agentkit/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.SetVersionInfo(version, commit, date)

	a, err := app.NewApp(app.ResolveProjectRoot())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing agentkit: %v\n", err)
		return 1
	}
	defer func() { _ = a.Close() }()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
