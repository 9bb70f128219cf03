package stage

import (
	"context"
	"fmt"
	"time"

	"fairlens/internal/config"
	"fairlens/internal/decode"
	"fairlens/internal/expand"
	"fairlens/internal/logging"
	"fairlens/internal/pipeline"
	"fairlens/internal/provider"
	"fairlens/internal/store"
)

const promptSystem = "You are generating image-generation prompts for a fairness audit dataset. " +
	"Each prompt must describe a single realistic scene in concrete visual detail. " +
	"Respond with a JSON object containing exactly one key, image_prompt."

// PromptStage expands the domain/risk template into its demographic corpus
// and asks a text model to turn each expansion into an image prompt.
type PromptStage struct {
	Domain   string
	Risk     string
	Template string
	Expander *expand.Expander
	Text     provider.TextGenerator
	// OutDir is the prompt-stage output directory; the JSONL and checkpoint
	// live under it.
	OutDir     string
	Registry   *config.PromptRegistry
	FlushEvery int
	Ledger     *store.Ledger
}

// Run generates one PromptSpec row per expanded template prompt and records
// the output file in the prompt registry.
func (s *PromptStage) Run(ctx context.Context) (pipeline.Summary, error) {
	started := time.Now()

	prompts, err := s.Expander.Expand(s.Template, s.Domain, s.Risk)
	if err != nil {
		return pipeline.Summary{}, err
	}
	logging.Expand("[prompts] %s/%s expanded to %d prompts", s.Domain, s.Risk, len(prompts))

	outPath := store.RecordPath(s.OutDir, s.Domain, s.Risk)
	writer, err := store.OpenJSONL(outPath, "image_prompt", s.FlushEvery)
	if err != nil {
		return pipeline.Summary{}, err
	}

	items := make([]pipeline.Item, len(prompts))
	for i := range prompts {
		// No stable output key exists before generation, so replay dedup for
		// this stage rests on the checkpoint alone.
		items[i] = pipeline.Item{Index: i}
	}

	engine := &pipeline.Engine{
		Stage:      pipeline.StagePrompts,
		Checkpoint: store.NewIntCheckpoint(store.CheckpointPath(s.OutDir, "prompts", s.Domain, s.Risk)),
		Flush:      writer.Flush,
		FlushEvery: s.FlushEvery,
	}

	summary, runErr := engine.Run(ctx, items, func(ctx context.Context, it pipeline.Item) (pipeline.Outcome, error) {
		user := fmt.Sprintf("%s\n\nScene request: %s", s.Template, prompts[it.Index])
		raw, err := s.Text.GenerateText(ctx, promptSystem, user)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		spec, err := decode.PromptSpec(raw)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		spec.Domain = s.Domain
		spec.Risk = s.Risk
		if writer.Logged(spec.ImagePrompt) {
			return pipeline.Outcome{Status: pipeline.StatusSkippedLogged}, nil
		}
		if err := writer.AppendRecord(spec.ImagePrompt, spec); err != nil {
			return pipeline.Outcome{}, err
		}
		return pipeline.Outcome{Status: pipeline.StatusGenerated}, nil
	})

	if runErr == nil {
		if err := s.Registry.Set(s.Domain, s.Risk, outPath); err != nil {
			return summary, err
		}
	}
	recordRun(s.Ledger, pipeline.StagePrompts, s.Domain, s.Risk, started, summary)
	return summary, runErr
}
