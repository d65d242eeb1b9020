package main

import (
	"context"
	"log"

	"github.com/nucleus/homegraph/internal/bronze"
	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/denorm"
	"github.com/nucleus/homegraph/internal/embed"
	"github.com/nucleus/homegraph/internal/engine"
	"github.com/nucleus/homegraph/internal/extract"
	"github.com/nucleus/homegraph/internal/gold"
	"github.com/nucleus/homegraph/internal/model"
	"github.com/nucleus/homegraph/internal/relate"
	"github.com/nucleus/homegraph/internal/report"
	"github.com/nucleus/homegraph/internal/silver"
	"github.com/nucleus/homegraph/internal/writer"
)

// run executes the pipeline tiers in order. Every step is fail-fast; the
// report carries whatever counters accumulated before a failure.
func run(ctx context.Context, cfg *config.Config, dryRun bool) (*report.Report, error) {
	rep := report.New()

	session, err := engine.Open(ctx)
	if err != nil {
		rep.Finish(err)
		return rep, err
	}
	defer func() { _ = session.Close() }()

	bronzeStats, err := bronze.NewLoader(session, cfg).Load(ctx)
	if err != nil {
		rep.Finish(err)
		return rep, err
	}
	rep.Bronze = *bronzeStats
	log.Printf("bronze: loaded %d rows, quarantined %d", bronzeStats.Total(), bronzeStats.Quarantined)

	silverStats, err := silver.NewTransformer(session).Run(ctx)
	if err != nil {
		rep.Finish(err)
		return rep, err
	}
	rep.Silver = *silverStats
	log.Printf("silver: %d properties, %d neighborhoods, %d wikipedia, quarantined %d",
		silverStats.Properties, silverStats.Neighborhoods, silverStats.Wikipedia, silverStats.Quarantined)

	entities, err := extract.NewExtractor(session, cfg.TopicClusters).Run(ctx)
	if err != nil {
		rep.Finish(err)
		return rep, err
	}
	rep.Entities = entities.Count()
	log.Printf("extract: %d derived entity nodes", entities.Count())

	provider, err := embed.New(cfg.Embedding, cfg.BatchTimeout())
	if err != nil {
		rep.Finish(err)
		return rep, err
	}
	batcher := embed.NewBatcher(provider, cfg.Embedding)

	docs, err := gold.NewBuilder(session, batcher).Run(ctx)
	rep.Embedding = batcher.Stats()
	if err != nil {
		rep.Finish(err)
		return rep, err
	}
	log.Printf("gold: %d properties, %d neighborhoods, %d wikipedia embedded via %s",
		len(docs.Properties), len(docs.Neighborhoods), len(docs.Wikipedia), provider.Name())

	edges, err := relate.NewBuilder(session, cfg.Similarity).Run(ctx, docs)
	if err != nil {
		rep.Finish(err)
		return rep, err
	}
	tables := &model.GoldTables{
		Properties:    docs.Properties,
		Neighborhoods: docs.Neighborhoods,
		Wikipedia:     docs.Wikipedia,
		Entities:      *entities,
		Edges:         edges,
	}
	rep.Edges = int64(tables.EdgeCount())
	log.Printf("relate: %d edges across %d kinds", tables.EdgeCount(), len(edges))

	if dryRun {
		log.Printf("dry run: skipping destination writes")
		rep.Finish(nil)
		return rep, nil
	}

	orchestrator, err := writer.NewOrchestrator(cfg)
	if err != nil {
		rep.Finish(err)
		return rep, err
	}
	results, err := orchestrator.Run(ctx, tables)
	rep.Destinations = results
	if err != nil {
		rep.Finish(err)
		return rep, err
	}

	if cfg.DestinationEnabled(config.DestinationSearch) {
		builder, err := denorm.NewBuilder(cfg)
		if err != nil {
			rep.Finish(err)
			return rep, err
		}
		n, err := builder.Run(ctx)
		rep.Relationships = n
		if err != nil {
			rep.Finish(err)
			return rep, err
		}
		log.Printf("denorm: %d relationship documents", n)
	}

	rep.Finish(nil)
	return rep, nil
}
