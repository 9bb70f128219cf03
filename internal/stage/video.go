package stage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"fairlens/internal/logging"
	"fairlens/internal/pipeline"
	"fairlens/internal/provider"
	"fairlens/internal/record"
	"fairlens/internal/store"
)

// VideoStage renders prompts into MP4 clips. The adapter hides the long-poll
// of the video operation; this stage only places files and tracks names in
// the JSON checkpoint.
type VideoStage struct {
	Domain          string
	Risk            string
	PromptsPath     string
	Video           provider.VideoGenerator
	OutRoot         string
	VideosPerPrompt int
	Ledger          *store.Ledger
}

// Run generates the clips for each prompt. Videos have no row store: the
// files themselves plus the checkpoint's video_names list are the record, so
// the engine flush is a no-op.
func (s *VideoStage) Run(ctx context.Context) (pipeline.Summary, error) {
	started := time.Now()

	specs, err := store.ReadJSONL[record.PromptSpec](s.PromptsPath)
	if err != nil {
		return pipeline.Summary{}, err
	}
	checkpoint, err := store.NewVideoCheckpoint(store.CheckpointPath(s.OutRoot, "videos", s.Domain, s.Risk))
	if err != nil {
		return pipeline.Summary{}, err
	}

	perPrompt := s.VideosPerPrompt
	if perPrompt <= 0 {
		perPrompt = 1
	}

	items := make([]pipeline.Item, len(specs))
	for i := range specs {
		items[i] = pipeline.Item{Index: i}
	}

	engine := &pipeline.Engine{
		Stage:      pipeline.StageVideos,
		Checkpoint: checkpoint,
		Flush:      func() error { return nil },
		FlushEvery: 1,
	}

	summary, runErr := engine.Run(ctx, items, func(ctx context.Context, it pipeline.Item) (pipeline.Outcome, error) {
		paths := make([]string, perPrompt)
		existing := 0
		for k := range paths {
			paths[k] = store.VideoPath(s.OutRoot, s.Domain, s.Risk, record.SettingBaseline, it.Index*perPrompt+k)
			if _, err := os.Stat(paths[k]); err == nil {
				existing++
			}
		}
		if existing == perPrompt {
			return pipeline.Outcome{Status: pipeline.StatusSkippedExists}, nil
		}

		clips, err := s.Video.GenerateVideos(ctx, specs[it.Index].ImagePrompt)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		names := make([]string, 0, len(clips))
		for k, clip := range clips {
			if k >= len(paths) {
				break
			}
			if err := store.WriteAtomic(paths[k], clip); err != nil {
				return pipeline.Outcome{}, err
			}
			names = append(names, filepath.Base(paths[k]))
		}
		checkpoint.AddVideos(names...)
		logging.Engine("[videos] item %d produced %d clips", it.Index, len(names))
		return pipeline.Outcome{Status: pipeline.StatusGenerated}, nil
	})

	recordRun(s.Ledger, pipeline.StageVideos, s.Domain, s.Risk, started, summary)
	return summary, runErr
}
