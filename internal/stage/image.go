package stage

import (
	"context"
	"os"
	"time"

	"fairlens/internal/logging"
	"fairlens/internal/pipeline"
	"fairlens/internal/provider"
	"fairlens/internal/record"
	"fairlens/internal/store"
)

// controlledSuffix steers the controlled setting toward demographic variety.
// The baseline setting sends the prompt unmodified.
const controlledSuffix = " Depict a diverse range of ages, genders, ethnicities and body types among the people shown."

// ImageStage renders every prompt of a domain/risk pair into PNG files, one
// per setting and sample, and indexes each file in the CSV.
type ImageStage struct {
	Domain      string
	Risk        string
	PromptsPath string
	Image       provider.ImageGenerator
	// OutRoot is the image root; files land under <root>/<category>/<setting>/.
	OutRoot    string
	CSVPath    string
	NumSamples int
	FlushEvery int
	Ledger     *store.Ledger
}

// Run generates baseline and controlled samples for each prompt. One input
// item fans out into 2*NumSamples artifacts, so outcomes carry aggregate
// counts rather than a single status.
func (s *ImageStage) Run(ctx context.Context) (pipeline.Summary, error) {
	started := time.Now()

	specs, err := store.ReadJSONL[record.PromptSpec](s.PromptsPath)
	if err != nil {
		return pipeline.Summary{}, err
	}
	csv, err := store.OpenCSVIndex(s.CSVPath, s.FlushEvery)
	if err != nil {
		return pipeline.Summary{}, err
	}

	items := make([]pipeline.Item, len(specs))
	for i := range specs {
		items[i] = pipeline.Item{Index: i}
	}

	engine := &pipeline.Engine{
		Stage:      pipeline.StageImages,
		Checkpoint: store.NewIntCheckpoint(store.CheckpointPath(s.OutRoot, "images", s.Domain, s.Risk)),
		Flush:      csv.Flush,
		FlushEvery: s.FlushEvery,
	}

	summary, runErr := engine.Run(ctx, items, func(ctx context.Context, it pipeline.Item) (pipeline.Outcome, error) {
		spec := specs[it.Index]
		var counts pipeline.Summary
		for _, setting := range []string{record.SettingBaseline, record.SettingControlled} {
			prompt := spec.ImagePrompt
			if setting == record.SettingControlled {
				prompt += controlledSuffix
			}
			for j := 0; j < s.NumSamples; j++ {
				sample := it.Index*s.NumSamples + j
				path := store.ImagePath(s.OutRoot, s.Domain, s.Risk, setting, sample)
				status, err := s.generateOne(ctx, csv, path, prompt, setting)
				if err != nil {
					if provider.IsFatal(err) {
						return pipeline.Outcome{Counts: &counts}, err
					}
					counts.Failed++
					logging.EngineError("[images] %s failed: %v", path, err)
					continue
				}
				switch status {
				case pipeline.StatusGenerated:
					counts.Generated++
				case pipeline.StatusSkippedExists:
					counts.SkippedExists++
				case pipeline.StatusSkippedLogged:
					counts.SkippedLogged++
				}
			}
		}
		return pipeline.Outcome{Counts: &counts}, nil
	})

	recordRun(s.Ledger, pipeline.StageImages, s.Domain, s.Risk, started, summary)
	return summary, runErr
}

// generateOne produces a single image file and its CSV row. An existing file
// is never regenerated; its CSV row is backfilled if the index lost it.
func (s *ImageStage) generateOne(ctx context.Context, csv *store.CSVIndex, path, prompt, setting string) (pipeline.Status, error) {
	row := store.CSVRow{
		ImageFile: path,
		Prompt:    prompt,
		Category:  store.Category(s.Domain, s.Risk),
		Model:     s.Image.Model(),
		Setting:   setting,
	}

	if _, err := os.Stat(path); err == nil {
		if !csv.Logged(path) {
			if err := csv.Append(row); err != nil {
				return 0, err
			}
		}
		return pipeline.StatusSkippedExists, nil
	}
	if csv.Logged(path) {
		return pipeline.StatusSkippedLogged, nil
	}

	png, err := s.Image.GenerateImage(ctx, prompt)
	if err != nil {
		return 0, err
	}
	if err := store.WriteAtomic(path, png); err != nil {
		return 0, err
	}
	if err := csv.Append(row); err != nil {
		return 0, err
	}
	return pipeline.StatusGenerated, nil
}
