package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"fairlens/internal/logging"
)

// XAIClient implements text generation against the xAI (Grok) API.
// The wire shape is OpenAI-compatible chat completions.
type XAIClient struct {
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

// DefaultXAIOptions returns sensible defaults.
func DefaultXAIOptions(apiKey string) Options {
	return Options{
		APIKey:      apiKey,
		BaseURL:     "https://api.x.ai/v1",
		Model:       "grok-2-latest",
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     10 * time.Minute, // Large context models need extended timeout
		Retry:       DefaultRetryPolicy(),
	}
}

// NewXAIClient creates an xAI client from options, filling defaults.
func NewXAIClient(opts Options) *XAIClient {
	defaults := DefaultXAIOptions(opts.APIKey)
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
	return &XAIClient{
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
func (c *XAIClient) Provider() string { return "grok" }

// Model returns the model in use.
func (c *XAIClient) Model() string { return c.model }

// SetModel changes the model.
func (c *XAIClient) SetModel(model string) { c.model = model }

type xaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type xaiRequest struct {
	Model       string       `json:"model"`
	Messages    []xaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

type xaiResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// GenerateText sends a system+user prompt and returns the completion.
func (c *XAIClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", &FatalError{Err: fmt.Errorf("API key not configured")}
	}
	if strings.TrimSpace(system) == "" {
		system = defaultSystemPrompt
	}

	reqBody := xaiRequest{
		Model: c.model,
		Messages: []xaiMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &FatalError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	var out string
	err = c.retry.Do(ctx, "xai.chat", func() error {
		c.throttle()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return &FatalError{Err: fmt.Errorf("failed to create request: %w", err)}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
			logging.ProviderError("[xai] chat/completions returned status %d", resp.StatusCode)
			return classifyStatus(resp.StatusCode, string(body))
		}

		var xaiResp xaiResponse
		if err := json.Unmarshal(body, &xaiResp); err != nil {
			return &FatalError{Err: fmt.Errorf("failed to parse response: %w", err)}
		}
		if xaiResp.Error != nil {
			return &FatalError{Err: fmt.Errorf("API error: %s", xaiResp.Error.Message)}
		}
		if len(xaiResp.Choices) == 0 {
			return &TransientError{Err: ErrEmptyResult}
		}
		out = strings.TrimSpace(xaiResp.Choices[0].Message.Content)
		if out == "" {
			return &TransientError{Err: ErrEmptyResult}
		}
		return nil
	})
	return out, err
}

func (c *XAIClient) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}
