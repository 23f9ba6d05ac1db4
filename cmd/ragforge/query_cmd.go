package main

import (
	"context"
	"fmt"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/retrieval"
)

// QueryCmd runs a retrieval query against the chunk store (§4.8).
type QueryCmd struct {
	Text        string `arg:"" name:"query" help:"Natural-language query text."`
	SourceID    string `help:"Restrict results to one source."`
	ContentType string `help:"Restrict results to one content type."`
}

// Run executes the query command.
func (c *QueryCmd) Run(cli *CLI, ctx context.Context) error {
	a, err := loadApp(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if a.retrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.retrievalTimeout)
		defer cancel()
	}

	resp, err := a.retrieve.Query(ctx, c.Text, filtersFrom(c))
	if err != nil {
		return fmt.Errorf("ragforge: query failed: %w", err)
	}

	if resp.Degraded {
		fmt.Printf("(degraded: %s)\n", resp.Warning)
	}
	for i, item := range resp.Items {
		fmt.Printf("%d. [%.3f %s] %s (%s §%v p.%d)\n",
			i+1, item.RetrievalScore, item.Strategy, item.ChunkID,
			item.Citation.SourceID, item.Citation.SectionPath, item.Citation.PageNumber)
	}
	return nil
}

func filtersFrom(c *QueryCmd) retrieval.Filters {
	return retrieval.Filters{
		SourceID:    c.SourceID,
		ContentType: ragforge.ContentType(c.ContentType),
	}
}
