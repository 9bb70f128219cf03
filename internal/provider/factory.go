package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Builder constructs a provider client from resolved options.
type Builder func(ctx context.Context, opts Options) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Builder{}
)

func init() {
	Register("openai", func(_ context.Context, opts Options) (Client, error) {
		return NewOpenAIClient(opts), nil
	})
	Register("gemini", func(_ context.Context, opts Options) (Client, error) {
		return NewGeminiClient(opts), nil
	})
	Register("grok", func(_ context.Context, opts Options) (Client, error) {
		return NewXAIClient(opts), nil
	})
	Register("fal", func(_ context.Context, opts Options) (Client, error) {
		return NewFALClient(opts), nil
	})
	Register("veo", NewVeoClientBuilder)
}

// NewVeoClientBuilder adapts the Veo constructor to the Builder signature.
func NewVeoClientBuilder(ctx context.Context, opts Options) (Client, error) {
	return NewVeoClient(ctx, opts)
}

// Register adds a builder under a provider name. Later registrations replace
// earlier ones, which tests use to install fakes.
func Register(name string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = b
}

// New builds the named provider client.
func New(ctx context.Context, name string, opts Options) (Client, error) {
	registryMu.RLock()
	b, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (known: %v)", name, Names())
	}
	return b(ctx, opts)
}

// Names lists the registered provider names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AsText asserts the text-generation capability.
func AsText(c Client) (TextGenerator, error) {
	if t, ok := c.(TextGenerator); ok {
		return t, nil
	}
	return nil, fmt.Errorf("provider %s does not support text generation", c.Provider())
}

// AsVision asserts the text-with-image capability.
func AsVision(c Client) (VisionGenerator, error) {
	if v, ok := c.(VisionGenerator); ok {
		return v, nil
	}
	return nil, fmt.Errorf("provider %s does not support vision input", c.Provider())
}

// AsImage asserts the image-generation capability.
func AsImage(c Client) (ImageGenerator, error) {
	if i, ok := c.(ImageGenerator); ok {
		return i, nil
	}
	return nil, fmt.Errorf("provider %s does not support image generation", c.Provider())
}

// AsVideo asserts the video-generation capability.
func AsVideo(c Client) (VideoGenerator, error) {
	if v, ok := c.(VideoGenerator); ok {
		return v, nil
	}
	return nil, fmt.Errorf("provider %s does not support video generation", c.Provider())
}
