// Package writer fans the gold dataset out to the enabled destinations.
// Destinations run sequentially in a fixed order and the first failure
// aborts the run; there is no partial-failure reconciliation, rerunning the
// pipeline converges every destination because all writes are idempotent.
package writer

import (
	"context"
	"log"
	"time"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/model"
)

// Destination is one write target. Write pushes the complete gold dataset
// in the fixed entity and edge order.
type Destination interface {
	Name() string
	Write(ctx context.Context, tables *model.GoldTables) (*Result, error)
}

// Result summarizes one destination's write for the run report.
type Result struct {
	Destination string
	Nodes       int64
	Edges       int64
	Elapsed     time.Duration
}

// Orchestrator drives the enabled destinations in order: file, search, graph.
type Orchestrator struct {
	destinations []Destination
}

// NewOrchestrator builds destination writers for every enabled target.
func NewOrchestrator(cfg *config.Config) (*Orchestrator, error) {
	o := &Orchestrator{}
	if cfg.DestinationEnabled(config.DestinationFile) {
		o.destinations = append(o.destinations, NewFileWriter(cfg.Destinations.File))
	}
	if cfg.DestinationEnabled(config.DestinationSearch) {
		sw, err := NewSearchWriter(cfg)
		if err != nil {
			return nil, err
		}
		o.destinations = append(o.destinations, sw)
	}
	if cfg.DestinationEnabled(config.DestinationGraph) {
		gw, err := NewGraphWriter(cfg.Destinations.Graph, cfg.BatchTimeout())
		if err != nil {
			return nil, err
		}
		o.destinations = append(o.destinations, gw)
	}
	return o, nil
}

// Run writes to each destination in turn, failing fast on the first error.
// Destinations holding connections are closed when the pass ends.
func (o *Orchestrator) Run(ctx context.Context, tables *model.GoldTables) ([]Result, error) {
	defer func() {
		for _, dest := range o.destinations {
			if c, ok := dest.(interface{ Close(context.Context) error }); ok {
				_ = c.Close(context.Background())
			}
		}
	}()
	results := make([]Result, 0, len(o.destinations))
	for _, dest := range o.destinations {
		if err := ctx.Err(); err != nil {
			return results, fault.New(fault.CodeCancelled, err)
		}
		start := time.Now()
		log.Printf("writer: %s write starting", dest.Name())
		res, err := dest.Write(ctx, tables)
		if err != nil {
			return results, err
		}
		res.Elapsed = time.Since(start)
		log.Printf("writer: %s wrote %d nodes, %d edges in %s",
			dest.Name(), res.Nodes, res.Edges, res.Elapsed.Round(time.Millisecond))
		results = append(results, *res)
	}
	return results, nil
}
