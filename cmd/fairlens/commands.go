package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"fairlens/internal/pipeline"
	"fairlens/internal/provider"
	"fairlens/internal/stage"
	"fairlens/internal/store"
)

var (
	textProviderFlag   string
	imageProviderFlag  string
	visionProviderFlag string
	questionsFlag      int
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Generate the image-prompt corpus from the demographic templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			return runPrompts(ctx, rt)
		})
	},
}

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Render every generated prompt into baseline and controlled images",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			return runImages(ctx, rt)
		})
	},
}

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "Render prompts into video clips via the Veo long-running API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			return runVideos(ctx, rt)
		})
	},
}

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Extract demographic metadata from the generated images",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			return runVQAFamily(ctx, rt, pipeline.StageMetadata)
		})
	},
}

var vqaCmd = &cobra.Command{
	Use:   "vqa",
	Short: "Generate VQA items against the annotated images",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			return runVQAFamily(ctx, rt, pipeline.StageVQA)
		})
	},
}

var csrVQACmd = &cobra.Command{
	Use:   "csr-vqa",
	Short: "Generate commonsense-reasoning VQA items against the annotated images",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			return runVQAFamily(ctx, rt, pipeline.StageCSRVQA)
		})
	},
}

var allStagesCmd = &cobra.Command{
	Use:   "all-stages",
	Short: "Run the full pipeline DAG in dependency order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(runAllStages)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{promptsCmd, allStagesCmd} {
		cmd.Flags().StringVar(&textProviderFlag, "provider", "grok", "text provider for prompt generation (openai, gemini, grok)")
	}
	for _, cmd := range []*cobra.Command{imagesCmd, allStagesCmd} {
		cmd.Flags().StringVar(&imageProviderFlag, "image-provider", "openai", "image provider (openai, fal)")
	}
	for _, cmd := range []*cobra.Command{metadataCmd, vqaCmd, csrVQACmd, allStagesCmd} {
		cmd.Flags().StringVar(&visionProviderFlag, "vision-provider", "gemini", "vision provider (openai, gemini)")
	}
	for _, cmd := range []*cobra.Command{vqaCmd, csrVQACmd, allStagesCmd} {
		cmd.Flags().IntVar(&questionsFlag, "questions", 3, "VQA items requested per image")
	}
}

// withRuntime builds the runtime and a signal-cancelled context around a
// stage function.
func withRuntime(fn func(ctx context.Context, rt *runtime) error) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, rt)
}

func runPrompts(ctx context.Context, rt *runtime) error {
	c, err := rt.client(ctx, textProviderFlag)
	if err != nil {
		return err
	}
	text, err := provider.AsText(c)
	if err != nil {
		return err
	}
	pairs, err := rt.pairs()
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		domain, risk := pair[0], pair[1]
		tmpl, err := rt.cfg.Template(domain, risk)
		if err != nil {
			return err
		}
		outPath := store.RecordPath(rt.promptsDir(), domain, risk)
		checkpointPath := store.CheckpointPath(rt.promptsDir(), "prompts", domain, risk)
		s := &stage.PromptStage{
			Domain:     domain,
			Risk:       risk,
			Template:   tmpl,
			Expander:   rt.expander(),
			Text:       text,
			OutDir:     rt.promptsDir(),
			Registry:   rt.registry,
			FlushEvery: rt.cfg.Common.FlushEvery,
			Ledger:     rt.ledger,
		}
		summary, err := s.Run(ctx)
		printSummary(pipeline.StagePrompts, domain, risk, outPath, checkpointPath, summary)
		if err != nil {
			return err
		}
	}
	return nil
}

func runImages(ctx context.Context, rt *runtime) error {
	c, err := rt.client(ctx, imageProviderFlag)
	if err != nil {
		return err
	}
	img, err := provider.AsImage(c)
	if err != nil {
		return err
	}
	pairs, err := rt.pairs()
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		domain, risk := pair[0], pair[1]
		checkpointPath := store.CheckpointPath(rt.imagesRoot(), "images", domain, risk)
		s := &stage.ImageStage{
			Domain:      domain,
			Risk:        risk,
			PromptsPath: rt.promptsPath(domain, risk),
			Image:       img,
			OutRoot:     rt.imagesRoot(),
			CSVPath:     rt.imagesCSV(imageProviderFlag),
			NumSamples:  rt.cfg.Common.NumSamplesPerSetting,
			FlushEvery:  rt.cfg.Common.FlushEvery,
			Ledger:      rt.ledger,
		}
		summary, err := s.Run(ctx)
		printSummary(pipeline.StageImages, domain, risk, s.CSVPath, checkpointPath, summary)
		if err != nil {
			return err
		}
	}
	return nil
}

func runVideos(ctx context.Context, rt *runtime) error {
	c, err := rt.client(ctx, "veo")
	if err != nil {
		return err
	}
	vid, err := provider.AsVideo(c)
	if err != nil {
		return err
	}
	pairs, err := rt.pairs()
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		domain, risk := pair[0], pair[1]
		outPath := filepath.Join(rt.videosRoot(), store.Category(domain, risk))
		checkpointPath := store.CheckpointPath(rt.videosRoot(), "videos", domain, risk)
		s := &stage.VideoStage{
			Domain:          domain,
			Risk:            risk,
			PromptsPath:     rt.promptsPath(domain, risk),
			Video:           vid,
			OutRoot:         rt.videosRoot(),
			VideosPerPrompt: rt.cfg.Veo.BatchSize,
			Ledger:          rt.ledger,
		}
		summary, err := s.Run(ctx)
		printSummary(pipeline.StageVideos, domain, risk, outPath, checkpointPath, summary)
		if err != nil {
			return err
		}
	}
	return nil
}

// runVQAFamily runs the three vision-backed stages, which share their input
// plumbing: metadata extraction, plain VQA, and CSR VQA.
func runVQAFamily(ctx context.Context, rt *runtime, id pipeline.StageID) error {
	c, err := rt.client(ctx, visionProviderFlag)
	if err != nil {
		return err
	}
	vision, err := provider.AsVision(c)
	if err != nil {
		return err
	}
	pairs, err := rt.pairs()
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		domain, risk := pair[0], pair[1]
		var summary pipeline.Summary
		var outPath, checkpointPath string
		switch id {
		case pipeline.StageMetadata:
			outPath = rt.metadataPath(domain, risk)
			checkpointPath = store.CheckpointPath(rt.metadataDir(), "metadata", domain, risk)
			s := &stage.MetadataStage{
				Domain:     domain,
				Risk:       risk,
				CSVPath:    rt.imagesCSV(imageProviderFlag),
				Vision:     vision,
				OutDir:     rt.metadataDir(),
				FlushEvery: rt.cfg.Common.FlushEvery,
				Ledger:     rt.ledger,
			}
			summary, err = s.Run(ctx)
		default:
			csr := id == pipeline.StageCSRVQA
			outDir := rt.vqaDir()
			if csr {
				outDir = rt.csrDir()
			}
			outPath = store.RecordPath(outDir, domain, risk)
			checkpointPath = store.CheckpointPath(outDir, string(id), domain, risk)
			s := &stage.VQAStage{
				Domain:            domain,
				Risk:              risk,
				MetadataPath:      rt.metadataPath(domain, risk),
				Vision:            vision,
				OutDir:            outDir,
				CSR:               csr,
				QuestionsPerImage: questionsFlag,
				FlushEvery:        rt.cfg.Common.FlushEvery,
				Ledger:            rt.ledger,
			}
			summary, err = s.Run(ctx)
		}
		printSummary(id, domain, risk, outPath, checkpointPath, summary)
		if err != nil {
			return err
		}
	}
	return nil
}

// runAllStages composes the full DAG: prompts feed images and videos, images
// feed metadata, metadata feeds both VQA stages.
func runAllStages(ctx context.Context, rt *runtime) error {
	r := pipeline.NewRegistry()
	register := func(id pipeline.StageID, consumes, produces []string, run func(context.Context, *runtime) error) error {
		return r.Register(pipeline.Stage{
			ID:       id,
			Consumes: consumes,
			Produces: produces,
			Run:      func(ctx context.Context) error { return run(ctx, rt) },
		})
	}

	if err := register(pipeline.StagePrompts, nil, []string{"prompts"}, runPrompts); err != nil {
		return err
	}
	if err := register(pipeline.StageImages, []string{"prompts"}, []string{"images"}, runImages); err != nil {
		return err
	}
	if err := register(pipeline.StageVideos, []string{"prompts"}, []string{"videos"}, runVideos); err != nil {
		return err
	}
	if err := register(pipeline.StageMetadata, []string{"images"}, []string{"metadata"}, func(ctx context.Context, rt *runtime) error {
		return runVQAFamily(ctx, rt, pipeline.StageMetadata)
	}); err != nil {
		return err
	}
	if err := register(pipeline.StageVQA, []string{"metadata"}, []string{"vqa"}, func(ctx context.Context, rt *runtime) error {
		return runVQAFamily(ctx, rt, pipeline.StageVQA)
	}); err != nil {
		return err
	}
	if err := register(pipeline.StageCSRVQA, []string{"metadata"}, []string{"csr_vqa"}, func(ctx context.Context, rt *runtime) error {
		return runVQAFamily(ctx, rt, pipeline.StageCSRVQA)
	}); err != nil {
		return err
	}
	return r.RunAll(ctx)
}
