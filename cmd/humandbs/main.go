// humandbs is the pipeline CLI: one subcommand per stage plus run.
package main

import (
	"os"

	"github.com/nbdc/humandbs-pipeline/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	os.Exit(cli.Execute())
}
