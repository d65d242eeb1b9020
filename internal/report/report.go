// Package report assembles the end-of-run summary.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nucleus/homegraph/internal/bronze"
	"github.com/nucleus/homegraph/internal/embed"
	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/silver"
	"github.com/nucleus/homegraph/internal/writer"
)

// Report accumulates run statistics across the tiers and destinations.
// A run that aborts mid-way still renders the counters gathered so far,
// plus the code of the first fatal error.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Bronze    bronze.Stats
	Silver    silver.Stats
	Embedding embed.Stats

	Entities int64
	Edges    int64

	Destinations  []writer.Result
	Relationships int64

	ErrorCode    string
	ErrorMessage string
}

// New starts a report clock.
func New() *Report {
	return &Report{StartedAt: time.Now()}
}

// Finish stamps the end time and records the run error, if any.
func (r *Report) Finish(err error) {
	r.FinishedAt = time.Now()
	if err != nil {
		r.ErrorCode = string(fault.CodeOf(err))
		r.ErrorMessage = err.Error()
	}
}

// Elapsed returns the wall time of the run.
func (r *Report) Elapsed() time.Duration {
	end := r.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.StartedAt)
}

// Succeeded reports whether the run completed without a fatal error.
func (r *Report) Succeeded() bool { return r.ErrorCode == "" }

// Write renders the human-readable summary.
func (r *Report) Write(w io.Writer) error {
	var b strings.Builder
	b.WriteString("run summary\n")
	fmt.Fprintf(&b, "  elapsed: %s\n", r.Elapsed().Round(time.Millisecond))
	fmt.Fprintf(&b, "  bronze:  properties=%d neighborhoods=%d wikipedia=%d locations=%d quarantined=%d\n",
		r.Bronze.Properties, r.Bronze.Neighborhoods, r.Bronze.Wikipedia, r.Bronze.Locations, r.Bronze.Quarantined)
	fmt.Fprintf(&b, "  silver:  properties=%d neighborhoods=%d wikipedia=%d locations=%d quarantined=%d dropped_refs=%d\n",
		r.Silver.Properties, r.Silver.Neighborhoods, r.Silver.Wikipedia, r.Silver.Locations,
		r.Silver.Quarantined, r.Silver.DroppedRefs)
	fmt.Fprintf(&b, "  embed:   texts=%d batches=%d cache_hits=%d retries=%d\n",
		r.Embedding.Texts, r.Embedding.Batches, r.Embedding.CacheHits, r.Embedding.Retries)
	fmt.Fprintf(&b, "  gold:    entities=%d edges=%d\n", r.Entities, r.Edges)
	for _, dest := range r.Destinations {
		fmt.Fprintf(&b, "  %-8s nodes=%d edges=%d elapsed=%s\n",
			dest.Destination+":", dest.Nodes, dest.Edges, dest.Elapsed.Round(time.Millisecond))
	}
	if r.Relationships > 0 {
		fmt.Fprintf(&b, "  denorm:  relationships=%d\n", r.Relationships)
	}
	if r.Succeeded() {
		b.WriteString("  status:  ok\n")
	} else {
		fmt.Fprintf(&b, "  status:  failed code=%s error=%s\n", r.ErrorCode, r.ErrorMessage)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
