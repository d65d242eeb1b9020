// Command homegraph runs the full property graph pipeline: bronze ingestion,
// silver normalization, gold enrichment and destination fan-out.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/fault"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the pipeline YAML config")
		dryRun     = flag.Bool("dry-run", false, "run every tier but skip destination writes")
	)
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("homegraph ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(exitCode(err))
	}

	rep, err := run(ctx, cfg, *dryRun)
	if writeErr := rep.Write(os.Stdout); writeErr != nil {
		fmt.Fprintf(os.Stderr, "write report: %v\n", writeErr)
	}
	if err != nil {
		log.Printf("run failed: %v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps fault codes to stable exit codes so callers can branch on
// the failure category.
func exitCode(err error) int {
	switch fault.CodeOf(err) {
	case fault.CodeConfig:
		return 2
	case fault.CodeSource:
		return 3
	case fault.CodeSchema:
		return 4
	case fault.CodeEmbedding:
		return 5
	case fault.CodeDestination:
		return 6
	case fault.CodeCancelled:
		return 7
	}
	return 1
}
