package migrate

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BartekS5/LDM/internal/source"
)

// BatchResult is the explicit per-batch outcome. Batches return these up
// the call chain and the engine merges them, so no counters are shared
// across concurrent batches.
type BatchResult struct {
	Processed int
	Skipped   int
	Created   int
	Updated   int
	// FieldUpdates counts how often each field appeared in an applied
	// update payload. Only populated when upsert stats are enabled.
	FieldUpdates map[string]int
	// IncrementalCovered / IncrementalMissing track per-field coverage in
	// incremental mode.
	IncrementalCovered map[string]int
	IncrementalMissing map[string]int
}

func newBatchResult() BatchResult {
	return BatchResult{
		FieldUpdates:       make(map[string]int),
		IncrementalCovered: make(map[string]int),
		IncrementalMissing: make(map[string]int),
	}
}

func (r *BatchResult) merge(o BatchResult) {
	r.Processed += o.Processed
	r.Skipped += o.Skipped
	r.Created += o.Created
	r.Updated += o.Updated
	mergeCounts(&r.FieldUpdates, o.FieldUpdates)
	mergeCounts(&r.IncrementalCovered, o.IncrementalCovered)
	mergeCounts(&r.IncrementalMissing, o.IncrementalMissing)
}

func mergeCounts(dst *map[string]int, src map[string]int) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]int)
	}
	for k, v := range src {
		(*dst)[k] += v
	}
}

// ModelStats is the per-model summary assembled during a run.
type ModelStats struct {
	Model    string
	Duration time.Duration
	Source   *source.Summary
	BatchResult
}

// Fields renders the summary for the per-model log line.
func (s *ModelStats) Fields() logrus.Fields {
	f := logrus.Fields{
		"model":     s.Model,
		"processed": s.Processed,
		"skipped":   s.Skipped,
		"duration":  s.Duration.Round(time.Millisecond).String(),
	}
	if s.Created+s.Updated > 0 {
		f["created"] = s.Created
		f["updated"] = s.Updated
	}
	if len(s.FieldUpdates) > 0 {
		f["fieldUpdates"] = s.FieldUpdates
	}
	if len(s.IncrementalCovered) > 0 || len(s.IncrementalMissing) > 0 {
		f["incrementalCovered"] = s.IncrementalCovered
		f["incrementalMissing"] = s.IncrementalMissing
	}
	return f
}

// RunReport aggregates the stats for all models that completed (or were in
// flight when a fatal error aborted the run).
type RunReport struct {
	Models []ModelStats
}

// Totals sums processed and skipped across models.
func (r *RunReport) Totals() (processed, skipped int) {
	for _, m := range r.Models {
		processed += m.Processed
		skipped += m.Skipped
	}
	return processed, skipped
}
