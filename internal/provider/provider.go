// Package provider implements a uniform adapter contract over the generative
// vendors the pipeline drives: OpenAI, Gemini, xAI (Grok), FAL, and Veo.
// Every adapter wraps its calls in capped exponential backoff and surfaces
// failures through the shared transient/fatal/exhausted taxonomy.
package provider

import (
	"context"
	"time"
)

// Client is the common surface of every adapter. Stages assert the capability
// interfaces they need (TextGenerator, ImageGenerator, ...) at bind time.
type Client interface {
	Provider() string
	Model() string
}

// TextGenerator produces a completion from role-tagged messages.
type TextGenerator interface {
	Client
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// VisionGenerator produces a completion from messages plus one image.
// Used by the metadata-extraction and VQA stages.
type VisionGenerator interface {
	Client
	GenerateTextWithImage(ctx context.Context, system, user string, image []byte) (string, error)
}

// ImageGenerator produces PNG bytes from a prompt.
type ImageGenerator interface {
	Client
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// VideoGenerator produces one or more MP4 payloads from a prompt. The adapter
// hides the create/poll/download cycle of long-running video operations.
type VideoGenerator interface {
	Client
	GenerateVideos(ctx context.Context, prompt string) ([][]byte, error)
}

// Options carries the per-stage generation settings shared by all adapters.
// Zero values fall back to adapter defaults.
type Options struct {
	APIKey           string
	BaseURL          string
	Model            string
	ImageModel       string
	MaxTokens        int
	Temperature      float64
	Timeout          time.Duration
	ImageSize        string
	AspectRatio      string
	PersonGeneration string
	VideosPerPrompt  int
	PollInterval     time.Duration
	Retry            RetryPolicy
}

const defaultSystemPrompt = "You are a careful assistant generating audit data for fairness evaluation. Answer with valid JSON only, no commentary."
