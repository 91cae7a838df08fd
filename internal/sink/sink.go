// Package sink defines the abstract ResultSink contract and a concrete
// postgres adapter. Persistence-engine internals beyond this contract are
// out of scope (spec §1 non-goal).
package sink

import (
	"context"

	"github.com/toshi0771/stock-screener-jp/internal/model"
)

// ResultSink is where a run's summary row and sampled detections land.
type ResultSink interface {
	// SaveRun persists a run summary and returns its generated ID. A
	// failure here drops the whole rule's output for this run — it is
	// logged, not retried, and bubbles to the caller.
	SaveRun(ctx context.Context, summary model.RunSummary) (runID string, err error)
	// SaveDetections persists a batch of sampled detections for runID.
	// Partial success is never exposed to the caller; a failure is logged
	// and the pipeline moves on to the next rule.
	SaveDetections(ctx context.Context, runID string, detections []model.Detection) error
}
