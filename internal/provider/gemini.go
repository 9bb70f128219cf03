package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"fairlens/internal/logging"
)

// GeminiClient implements text and vision generation against the Gemini
// REST API (generateContent).
type GeminiClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	retry       RetryPolicy
	mu          sync.Mutex
	lastRequest time.Time
}

// DefaultGeminiOptions returns sensible defaults.
func DefaultGeminiOptions(apiKey string) Options {
	return Options{
		APIKey:      apiKey,
		BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
		Model:       "gemini-2.0-flash",
		MaxTokens:   8192,
		Temperature: 0.7,
		Timeout:     5 * time.Minute,
		Retry:       DefaultRetryPolicy(),
	}
}

// NewGeminiClient creates a Gemini client from options, filling defaults.
func NewGeminiClient(opts Options) *GeminiClient {
	defaults := DefaultGeminiOptions(opts.APIKey)
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.BaseURL
	}
	if opts.Model == "" {
		opts.Model = defaults.Model
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaults.MaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaults.Temperature
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = defaults.Retry
	}
	return &GeminiClient{
		apiKey:      opts.APIKey,
		baseURL:     opts.BaseURL,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		retry:       opts.Retry,
	}
}

// Provider returns the registry name.
func (c *GeminiClient) Provider() string { return "gemini" }

// Model returns the model in use.
func (c *GeminiClient) Model() string { return c.model }

// SetModel changes the model.
func (c *GeminiClient) SetModel(model string) { c.model = model }

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// GenerateText sends a system+user prompt and returns the completion.
func (c *GeminiClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	return c.generate(ctx, system, []geminiPart{{Text: user}})
}

// GenerateTextWithImage sends the prompt along with one inline PNG.
func (c *GeminiClient) GenerateTextWithImage(ctx context.Context, system, user string, image []byte) (string, error) {
	parts := []geminiPart{
		{Text: user},
		{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(image),
		}},
	}
	return c.generate(ctx, system, parts)
}

func (c *GeminiClient) generate(ctx context.Context, system string, parts []geminiPart) (string, error) {
	if c.apiKey == "" {
		return "", &FatalError{Err: fmt.Errorf("API key not configured")}
	}
	if strings.TrimSpace(system) == "" {
		system = defaultSystemPrompt
	}

	reqBody := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: c.maxTokens,
			Temperature:     c.temperature,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &FatalError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

	var out string
	err = c.retry.Do(ctx, "gemini.generate", func() error {
		c.throttle()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return &FatalError{Err: fmt.Errorf("failed to create request: %w", err)}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &TransientError{Err: fmt.Errorf("request failed: %w", err)}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &TransientError{Err: fmt.Errorf("failed to read response: %w", err)}
		}
		if resp.StatusCode != http.StatusOK {
			logging.ProviderError("[gemini] generateContent returned status %d", resp.StatusCode)
			return classifyStatus(resp.StatusCode, string(body))
		}

		var gemResp geminiResponse
		if err := json.Unmarshal(body, &gemResp); err != nil {
			return &FatalError{Err: fmt.Errorf("failed to parse response: %w", err)}
		}
		if gemResp.Error != nil {
			return &FatalError{Err: fmt.Errorf("API error: %s", gemResp.Error.Message)}
		}
		if len(gemResp.Candidates) == 0 {
			return &TransientError{Err: ErrEmptyResult}
		}

		var sb strings.Builder
		for _, part := range gemResp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		out = strings.TrimSpace(sb.String())
		if out == "" {
			return &TransientError{Err: ErrEmptyResult}
		}
		return nil
	})
	return out, err
}

func (c *GeminiClient) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}
