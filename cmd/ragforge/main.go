// Command ragforge is the CLI entry point (§1): it wires configuration,
// observability, and the ingestion and retrieval pipelines together
// behind five subcommands (version, ingest, watch, query, validate).
//
// Usage:
//
//	ragforge ingest --config ragforge.yaml doc1.pdf doc2.md
//	ragforge query --config ragforge.yaml "how do I configure retries?"
//	ragforge validate ragforge.yaml
//
// Grounded on cmd/hector/main.go's kong CLI struct (Run(cli *CLI) error
// per subcommand, --config/--log-level/--log-format top-level flags).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Ingest   IngestCmd   `cmd:"" help:"Ingest one or more documents into the chunk store."`
	Watch    WatchCmd    `cmd:"" help:"Watch a directory and incrementally re-ingest changed documents."`
	Query    QueryCmd    `cmd:"" help:"Run a retrieval query against the chunk store."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config string `short:"c" help:"Path to YAML config file." type:"path" default:"ragforge.yaml"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("ragforge version %s\n", version)
	return nil
}

func main() {
	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("ragforge"),
		kong.Description("Document ingestion and hybrid retrieval engine."),
		kong.UsageOnError(),
	)

	err := kctx.Run(&cli, appCtx)
	kctx.FatalIfErrorf(err)
}
