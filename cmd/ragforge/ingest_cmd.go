package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kadirpekel/ragforge/pkg/detector"
)

// IngestCmd ingests one or more source documents (§5).
type IngestCmd struct {
	Paths []string `arg:"" name:"path" help:"Source document(s) to ingest." type:"existingfile"`
}

// Run executes the ingest command.
func (c *IngestCmd) Run(cli *CLI, ctx context.Context) error {
	a, err := loadApp(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	results, err := a.ingest.IngestBatch(ctx, c.Paths, func(path string) detector.Metadata {
		return detector.Metadata{Filename: filepath.Base(path)}
	})
	for i, res := range results {
		if res == nil {
			continue
		}
		status := res.Source.Status
		fmt.Printf("%s: %s (sourceId=%s)\n", c.Paths[i], status, res.Source.SourceID)
		if res.Report != nil {
			fmt.Printf("  grade=%s overall=%.2f\n", res.Report.Grade, res.Report.OverallScore)
			for _, w := range res.Report.Warnings {
				fmt.Printf("  warning: %s\n", w)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("ragforge: one or more sources failed to ingest: %w", err)
	}
	return nil
}
