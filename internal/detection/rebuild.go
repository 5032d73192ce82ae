package detection

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// RebuildEntry is one diary entry fed to a full graph rebuild.
type RebuildEntry struct {
	ID      string
	Content string
}

// Rebuild clears the graph and re-extracts the entire corpus in batches,
// writing every result directly (a rebuild is user-requested, so the
// suggestion gate does not apply). A failed batch is logged and skipped like
// in a scheduled run.
func (p *Pipeline) Rebuild(ctx context.Context, entries []RebuildEntry) error {
	if err := p.graph.Clear(ctx); err != nil {
		return err
	}

	p.logger.Info("Rebuilding topic graph", zap.Int("entries", len(entries)))

	for start := 0; start < len(entries); start += p.batchSize {
		end := start + p.batchSize
		if end > len(entries) {
			end = len(entries)
		}

		var parts []string
		for _, e := range entries[start:end] {
			parts = append(parts, fmt.Sprintf("[Entry %s]\n%s", e.ID, e.Content))
		}

		result := p.extractor.Extract(ctx, strings.Join(parts, "\n\n"))
		if result.IsEmpty() {
			p.logger.Warn("Rebuild batch returned no results",
				zap.Int("batch_start", start),
			)
			continue
		}
		if err := p.graph.UpsertBatch(ctx, result.Entities(), result.Relations); err != nil {
			return err
		}
	}

	return nil
}
