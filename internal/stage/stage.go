// Package stage implements the pipeline stages: prompt generation, image and
// video synthesis, metadata extraction, and the two VQA stages. Each stage is
// a composition of the same shape: load input, call the provider through the
// decoder for each item, enrich with carry-through fields, persist through the
// store. Resume, flushing and checkpointing belong to pipeline.Engine.
package stage

import (
	"time"

	"fairlens/internal/logging"
	"fairlens/internal/pipeline"
	"fairlens/internal/store"
)

// recordRun writes the stage summary to the run ledger when one is attached.
// Ledger failures are logged, never fatal: bookkeeping must not kill a run
// whose artifacts are already durable.
func recordRun(ledger *store.Ledger, stage pipeline.StageID, domain, risk string, started time.Time, s pipeline.Summary) {
	if ledger == nil {
		return
	}
	_, err := ledger.Record(store.RunSummary{
		Stage:         string(stage),
		Domain:        domain,
		Risk:          risk,
		Total:         s.Total,
		Generated:     s.Generated,
		SkippedExists: s.SkippedExists,
		SkippedLogged: s.SkippedLogged,
		SkippedResume: s.SkippedResume,
		Failed:        s.Failed,
		StartIndex:    s.StartIndex,
		Started:       started,
		Finished:      time.Now(),
	})
	if err != nil {
		logging.EngineError("[%s] ledger write failed: %v", stage, err)
	}
}
