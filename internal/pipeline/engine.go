// Package pipeline provides the resumable execution substrate shared by all
// stages: per-item iteration with checkpoint resume, flush-before-checkpoint
// ordering, per-item failure accounting, and DAG composition of stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"fairlens/internal/decode"
	"fairlens/internal/logging"
	"fairlens/internal/provider"
	"fairlens/internal/store"
)

// StageID names a pipeline stage.
type StageID string

const (
	StagePrompts  StageID = "prompts"
	StageImages   StageID = "images"
	StageVideos   StageID = "videos"
	StageMetadata StageID = "metadata"
	StageVQA      StageID = "vqa"
	StageCSRVQA   StageID = "csr-vqa"
)

// Item is one unit of work, keyed by its stable position in the input.
type Item struct {
	Index int
	// Key is the idempotency key checked against the output's logged set
	// before the op runs. Empty disables the pre-check (the image stage
	// expands one item into several artifacts and checks per file).
	Key string
}

// Status classifies a completed op.
type Status int

const (
	StatusGenerated Status = iota
	StatusSkippedExists
	StatusSkippedLogged
)

// Outcome is what an op reports back for one item. Multi-artifact ops (the
// image stage) report aggregate counts instead of a single status.
type Outcome struct {
	Status Status
	Counts *Summary // optional fine-grained counts; overrides Status
}

// Op performs the stage work for one item: call the provider, decode, append
// the output row. The engine never retries an op; retries live inside the
// provider adapters.
type Op func(ctx context.Context, item Item) (Outcome, error)

// Summary is the final accounting of a stage run. SkippedResume counts items
// already covered by the checkpoint; SkippedLogged counts items caught by the
// output's logged set.
type Summary struct {
	Total         int
	Generated     int
	SkippedExists int
	SkippedLogged int
	SkippedResume int
	Failed        int
	StartIndex    int
}

func (s Summary) String() string {
	return fmt.Sprintf("total=%d generated=%d skipped(file_exists)=%d skipped(in_csv)=%d skipped(checkpoint)=%d failed=%d",
		s.Total, s.Generated, s.SkippedExists, s.SkippedLogged, s.SkippedResume, s.Failed)
}

// Engine runs one stage over its items with idempotent resume.
//
// Resume model: the checkpoint holds last_processed_index; items at or below
// it are skipped outright. The logged set of the output (when wired) catches
// rows that were flushed before a crash that lost the checkpoint advance.
//
// Checkpoint discipline: the output buffer is flushed before every checkpoint
// write, and the checkpoint only advances across a prefix of successful
// items. A failed item freezes the frontier so a rerun retries it; later
// successes still append rows (the logged set de-duplicates on replay).
type Engine struct {
	Stage      StageID
	Checkpoint store.Checkpoint
	// Flush drains the stage output buffer. Called before every checkpoint
	// write and once at the end of the run.
	Flush func() error
	// Logged reports whether a key already has an output row. Optional.
	Logged func(key string) bool
	// FlushEvery controls how many processed items share one flush+checkpoint
	// write. 1 means a durable row and checkpoint per item.
	FlushEvery int
}

// Run processes every item not already covered by the checkpoint or the
// logged set. It returns the summary even on error.
func (e *Engine) Run(ctx context.Context, items []Item, op Op) (Summary, error) {
	last, err := e.Checkpoint.Load()
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Total: len(items), StartIndex: last + 1}
	logging.Engine("[%s] starting at index %d of %d items", e.Stage, summary.StartIndex, len(items))

	flushEvery := e.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 10
	}

	frontier := last
	failedSeen := false
	sinceFlush := 0

	finish := func(runErr error) (Summary, error) {
		if err := e.Flush(); err != nil {
			return summary, fmt.Errorf("flush failed: %w", err)
		}
		if err := e.Checkpoint.Store(frontier); err != nil {
			return summary, fmt.Errorf("checkpoint write failed: %w", err)
		}
		logging.Engine("[%s] finished: %s", e.Stage, summary)
		return summary, runErr
	}

	for _, item := range items {
		select {
		case <-ctx.Done():
			// Cooperative cancellation: persist what we have, then exit.
			logging.Engine("[%s] interrupted at index %d", e.Stage, item.Index)
			return finish(ctx.Err())
		default:
		}

		if item.Index <= last {
			summary.SkippedResume++
			continue
		}

		if e.Logged != nil && item.Key != "" && e.Logged(item.Key) {
			summary.SkippedLogged++
			if !failedSeen {
				frontier = item.Index
			}
			continue
		}

		outcome, opErr := op(ctx, item)
		if opErr != nil {
			if isItemError(opErr) {
				summary.Failed++
				failedSeen = true
				logging.EngineError("[%s] item %d failed: %v", e.Stage, item.Index, opErr)
				continue
			}
			// Fatal: abort the run, preserving progress made so far.
			logging.EngineError("[%s] fatal error at item %d: %v", e.Stage, item.Index, opErr)
			return finish(opErr)
		}

		if outcome.Counts != nil {
			summary.Generated += outcome.Counts.Generated
			summary.SkippedExists += outcome.Counts.SkippedExists
			summary.SkippedLogged += outcome.Counts.SkippedLogged
			summary.SkippedResume += outcome.Counts.SkippedResume
			summary.Failed += outcome.Counts.Failed
			if outcome.Counts.Failed > 0 {
				failedSeen = true
				continue
			}
		} else {
			switch outcome.Status {
			case StatusGenerated:
				summary.Generated++
			case StatusSkippedExists:
				summary.SkippedExists++
			case StatusSkippedLogged:
				summary.SkippedLogged++
			}
		}

		if !failedSeen {
			frontier = item.Index
		}
		sinceFlush++
		if sinceFlush >= flushEvery {
			if err := e.Flush(); err != nil {
				return summary, fmt.Errorf("flush failed: %w", err)
			}
			if err := e.Checkpoint.Store(frontier); err != nil {
				return summary, fmt.Errorf("checkpoint write failed: %w", err)
			}
			sinceFlush = 0
		}
	}

	return finish(nil)
}

// isItemError reports whether err should skip the item rather than abort the
// run: decode and schema failures, plus provider errors that are not fatal.
func isItemError(err error) bool {
	var decodeErr *decode.DecodeError
	if errors.As(err, &decodeErr) {
		return true
	}
	var schemaErr *decode.SchemaError
	if errors.As(err, &schemaErr) {
		return true
	}
	if provider.IsFatal(err) {
		return false
	}
	var transient *provider.TransientError
	if errors.As(err, &transient) {
		// The adapter's retry budget did not convert this to Exhausted, so
		// treat it as a per-item failure and move on.
		return true
	}
	return false
}
