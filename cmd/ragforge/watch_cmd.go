package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kadirpekel/ragforge/pkg/detector"
	"github.com/kadirpekel/ragforge/pkg/ingest"
)

// WatchCmd watches a directory and incrementally re-ingests files as they
// are created or modified (§5 job orchestration, triggered by filesystem
// events instead of a one-shot batch).
type WatchCmd struct {
	Path string `arg:"" name:"path" help:"Directory to watch for new or changed source documents." type:"existingdir"`
}

// Run executes the watch command. It blocks until ctx is cancelled
// (e.g. SIGINT/SIGTERM, wired in main()).
func (c *WatchCmd) Run(cli *CLI, ctx context.Context) error {
	a, err := loadApp(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	watcher, err := ingest.NewWatcher(a.ingest, ingest.WatchConfig{
		BasePath: c.Path,
		Meta: func(path string) detector.Metadata {
			return detector.Metadata{Filename: filepath.Base(path)}
		},
	})
	if err != nil {
		return fmt.Errorf("ragforge: failed to start watcher: %w", err)
	}

	results, err := watcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("ragforge: failed to watch %s: %w", c.Path, err)
	}
	defer watcher.Stop()

	a.logger.Info("watching for changes", "path", c.Path)
	for res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		fmt.Printf("%s: %s (sourceId=%s)\n", res.Source.Filename, res.Source.Status, res.Source.SourceID)
	}
	return nil
}
