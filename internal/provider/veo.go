package provider

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"fairlens/internal/logging"
)

// VeoClient implements video generation through the Google GenAI SDK.
// GenerateVideos is a long-running operation: the adapter issues the create
// call, polls at a fixed interval until done, then downloads every generated
// file. A completed operation with no videos is treated as transient and
// retried, with jitter, since Veo intermittently returns empty result lists.
// videoAPI is the slice of the GenAI SDK the adapter calls. Indirected so
// tests can stand in for the remote service.
type videoAPI interface {
	CreateVideos(ctx context.Context, model, prompt string, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	PollVideos(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
	DownloadVideo(ctx context.Context, video *genai.Video) ([]byte, error)
}

type genaiVideoAPI struct {
	client *genai.Client
}

func (g genaiVideoAPI) CreateVideos(ctx context.Context, model, prompt string, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return g.client.Models.GenerateVideos(ctx, model, prompt, nil, config)
}

func (g genaiVideoAPI) PollVideos(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return g.client.Operations.GetVideosOperation(ctx, op, nil)
}

func (g genaiVideoAPI) DownloadVideo(ctx context.Context, video *genai.Video) ([]byte, error) {
	return g.client.Files.Download(ctx, video, nil)
}

type VeoClient struct {
	api              videoAPI
	model            string
	aspectRatio      string
	personGeneration string
	videosPerPrompt  int
	pollInterval     time.Duration
	retry            RetryPolicy
}

// DefaultVeoOptions returns sensible defaults.
func DefaultVeoOptions(apiKey string) Options {
	retry := DefaultRetryPolicy()
	retry.Jitter = true
	return Options{
		APIKey:          apiKey,
		Model:           "veo-2.0-generate-001",
		AspectRatio:     "16:9",
		VideosPerPrompt: 1,
		PollInterval:    10 * time.Second,
		Retry:           retry,
	}
}

// NewVeoClient creates a Veo client from options, filling defaults.
func NewVeoClient(ctx context.Context, opts Options) (*VeoClient, error) {
	if opts.APIKey == "" {
		return nil, &FatalError{Err: fmt.Errorf("API key not configured")}
	}
	defaults := DefaultVeoOptions(opts.APIKey)
	if opts.Model == "" {
		opts.Model = defaults.Model
	}
	if opts.AspectRatio == "" {
		opts.AspectRatio = defaults.AspectRatio
	}
	if opts.VideosPerPrompt == 0 {
		opts.VideosPerPrompt = defaults.VideosPerPrompt
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = defaults.Retry
	}
	opts.Retry.Jitter = true

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: opts.APIKey})
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to create GenAI client: %w", err)}
	}
	return &VeoClient{
		api:              genaiVideoAPI{client: client},
		model:            opts.Model,
		aspectRatio:      opts.AspectRatio,
		personGeneration: opts.PersonGeneration,
		videosPerPrompt:  opts.VideosPerPrompt,
		pollInterval:     opts.PollInterval,
		retry:            opts.Retry,
	}, nil
}

// Provider returns the registry name.
func (c *VeoClient) Provider() string { return "veo" }

// Model returns the model in use.
func (c *VeoClient) Model() string { return c.model }

// GenerateVideos produces MP4 payloads for the prompt.
func (c *VeoClient) GenerateVideos(ctx context.Context, prompt string) ([][]byte, error) {
	var out [][]byte
	err := c.retry.Do(ctx, "veo.generate", func() error {
		videos, err := c.generateOnce(ctx, prompt)
		if err != nil {
			return err
		}
		if len(videos) == 0 {
			return &TransientError{Err: ErrEmptyResult}
		}
		out = videos
		return nil
	})
	return out, err
}

func (c *VeoClient) generateOnce(ctx context.Context, prompt string) ([][]byte, error) {
	config := &genai.GenerateVideosConfig{
		NumberOfVideos: int32(c.videosPerPrompt),
		AspectRatio:    c.aspectRatio,
	}
	if c.personGeneration != "" {
		config.PersonGeneration = c.personGeneration
	}

	op, err := c.api.CreateVideos(ctx, c.model, prompt, config)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("video create call failed: %w", err)}
	}

	for !op.Done {
		if err := sleepCtx(ctx, c.pollInterval); err != nil {
			return nil, err
		}
		op, err = c.api.PollVideos(ctx, op)
		if err != nil {
			return nil, &TransientError{Err: fmt.Errorf("video poll failed: %w", err)}
		}
		logging.Provider("[veo] operation %s done=%v", op.Name, op.Done)
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return nil, nil
	}

	videos := make([][]byte, 0, len(op.Response.GeneratedVideos))
	for _, gv := range op.Response.GeneratedVideos {
		if gv.Video == nil {
			continue
		}
		if len(gv.Video.VideoBytes) > 0 {
			videos = append(videos, gv.Video.VideoBytes)
			continue
		}
		data, err := c.api.DownloadVideo(ctx, gv.Video)
		if err != nil {
			return nil, &TransientError{Err: fmt.Errorf("video download failed: %w", err)}
		}
		videos = append(videos, data)
	}
	return videos, nil
}
