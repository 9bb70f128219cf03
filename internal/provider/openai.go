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

// OpenAIClient implements text, vision, and image generation against the
// OpenAI API.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	imageModel  string
	imageSize   string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	retry       RetryPolicy
	mu          sync.Mutex
	lastRequest time.Time
}

// DefaultOpenAIOptions returns sensible defaults.
func DefaultOpenAIOptions(apiKey string) Options {
	return Options{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o",
		ImageModel:  "dall-e-3",
		ImageSize:   "1024x1024",
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     2 * time.Minute,
		Retry:       DefaultRetryPolicy(),
	}
}

// NewOpenAIClient creates an OpenAI client from options, filling defaults.
func NewOpenAIClient(opts Options) *OpenAIClient {
	defaults := DefaultOpenAIOptions(opts.APIKey)
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.BaseURL
	}
	if opts.Model == "" {
		opts.Model = defaults.Model
	}
	if opts.ImageModel == "" {
		opts.ImageModel = defaults.ImageModel
	}
	if opts.ImageSize == "" {
		opts.ImageSize = defaults.ImageSize
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
	return &OpenAIClient{
		apiKey:      opts.APIKey,
		baseURL:     opts.BaseURL,
		model:       opts.Model,
		imageModel:  opts.ImageModel,
		imageSize:   opts.ImageSize,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		retry:       opts.Retry,
	}
}

// Provider returns the registry name.
func (c *OpenAIClient) Provider() string { return "openai" }

// Model returns the chat model in use.
func (c *OpenAIClient) Model() string { return c.model }

// SetModel changes the chat model.
func (c *OpenAIClient) SetModel(model string) { c.model = model }

type openAIContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type openAIImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type openAIImageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateText sends a system+user prompt and returns the completion.
func (c *OpenAIClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	messages := c.messages(system, []openAIContentPart{{Type: "text", Text: user}})
	return c.chat(ctx, messages)
}

// GenerateTextWithImage sends the prompt along with one inline image.
func (c *OpenAIClient) GenerateTextWithImage(ctx context.Context, system, user string, image []byte) (string, error) {
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
	parts := []openAIContentPart{
		{Type: "text", Text: user},
		{Type: "image_url", ImageURL: &struct {
			URL string `json:"url"`
		}{URL: dataURI}},
	}
	return c.chat(ctx, c.messages(system, parts))
}

func (c *OpenAIClient) messages(system string, parts []openAIContentPart) []openAIMessage {
	if strings.TrimSpace(system) == "" {
		system = defaultSystemPrompt
	}
	return []openAIMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: parts},
	}
}

func (c *OpenAIClient) chat(ctx context.Context, messages []openAIMessage) (string, error) {
	if c.apiKey == "" {
		return "", &FatalError{Err: fmt.Errorf("API key not configured")}
	}

	reqBody := openAIChatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &FatalError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	var out string
	err = c.retry.Do(ctx, "openai.chat", func() error {
		c.throttle()
		body, err := c.post(ctx, "/chat/completions", jsonData)
		if err != nil {
			return err
		}
		var resp openAIChatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return &FatalError{Err: fmt.Errorf("failed to parse response: %w", err)}
		}
		if resp.Error != nil {
			return &FatalError{Err: fmt.Errorf("API error: %s", resp.Error.Message)}
		}
		if len(resp.Choices) == 0 {
			return &TransientError{Err: ErrEmptyResult}
		}
		out = strings.TrimSpace(resp.Choices[0].Message.Content)
		if out == "" {
			return &TransientError{Err: ErrEmptyResult}
		}
		return nil
	})
	return out, err
}

// GenerateImage produces PNG bytes. Both base64 and URL response shapes are
// handled; URL responses are downloaded through the same HTTP client.
func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, &FatalError{Err: fmt.Errorf("API key not configured")}
	}

	reqBody := openAIImageRequest{
		Model:          c.imageModel,
		Prompt:         prompt,
		N:              1,
		Size:           c.imageSize,
		ResponseFormat: "b64_json",
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	var out []byte
	err = c.retry.Do(ctx, "openai.image", func() error {
		c.throttle()
		body, err := c.post(ctx, "/images/generations", jsonData)
		if err != nil {
			return err
		}
		var resp openAIImageResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return &FatalError{Err: fmt.Errorf("failed to parse response: %w", err)}
		}
		if resp.Error != nil {
			return &FatalError{Err: fmt.Errorf("API error: %s", resp.Error.Message)}
		}
		if len(resp.Data) == 0 {
			return &TransientError{Err: ErrEmptyResult}
		}
		switch {
		case resp.Data[0].B64JSON != "":
			decoded, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
			if err != nil {
				return &FatalError{Err: fmt.Errorf("invalid base64 image payload: %w", err)}
			}
			out = decoded
		case resp.Data[0].URL != "":
			downloaded, err := c.download(ctx, resp.Data[0].URL)
			if err != nil {
				return err
			}
			out = downloaded
		default:
			return &TransientError{Err: ErrEmptyResult}
		}
		return nil
	})
	return out, err
}

func (c *OpenAIClient) post(ctx context.Context, path string, jsonData []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		logging.ProviderError("[openai] %s returned status %d", path, resp.StatusCode)
		return nil, classifyStatus(resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *OpenAIClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to create download request: %w", err)}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("image download failed: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, "image download")
	}
	return io.ReadAll(resp.Body)
}

// throttle enforces a minimum gap between requests.
func (c *OpenAIClient) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}
