package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fairlens/internal/logging"
)

// FALClient implements image generation against the FAL queue API.
// A request is submitted to the queue, polled until COMPLETED, then the
// result payload is fetched and the first image downloaded.
type FALClient struct {
	apiKey       string
	baseURL      string
	model        string
	imageSize    string
	pollInterval time.Duration
	httpClient   *http.Client
	retry        RetryPolicy
}

// DefaultFALOptions returns sensible defaults.
func DefaultFALOptions(apiKey string) Options {
	return Options{
		APIKey:       apiKey,
		BaseURL:      "https://queue.fal.run",
		Model:        "fal-ai/flux/dev",
		ImageSize:    "square_hd",
		Timeout:      5 * time.Minute,
		PollInterval: 2 * time.Second,
		Retry:        DefaultRetryPolicy(),
	}
}

// NewFALClient creates a FAL client from options, filling defaults.
func NewFALClient(opts Options) *FALClient {
	defaults := DefaultFALOptions(opts.APIKey)
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.BaseURL
	}
	if opts.Model == "" {
		opts.Model = defaults.Model
	}
	if opts.ImageSize == "" {
		opts.ImageSize = defaults.ImageSize
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = defaults.Retry
	}
	return &FALClient{
		apiKey:       opts.APIKey,
		baseURL:      opts.BaseURL,
		model:        opts.Model,
		imageSize:    opts.ImageSize,
		pollInterval: opts.PollInterval,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		retry:        opts.Retry,
	}
}

// Provider returns the registry name.
func (c *FALClient) Provider() string { return "fal" }

// Model returns the model in use.
func (c *FALClient) Model() string { return c.model }

type falSubmitRequest struct {
	Prompt    string `json:"prompt"`
	ImageSize string `json:"image_size,omitempty"`
	NumImages int    `json:"num_images"`
}

type falSubmitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type falStatusResponse struct {
	Status string `json:"status"` // IN_QUEUE, IN_PROGRESS, COMPLETED
}

type falResultResponse struct {
	Images []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"images"`
}

// GenerateImage submits the prompt to the queue, waits for completion, and
// downloads the first generated image.
func (c *FALClient) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, &FatalError{Err: fmt.Errorf("API key not configured")}
	}

	var out []byte
	err := c.retry.Do(ctx, "fal.image", func() error {
		submitted, err := c.submit(ctx, prompt)
		if err != nil {
			return err
		}
		if err := c.await(ctx, submitted); err != nil {
			return err
		}
		result, err := c.result(ctx, submitted)
		if err != nil {
			return err
		}
		if len(result.Images) == 0 {
			return &TransientError{Err: ErrEmptyResult}
		}
		out, err = c.download(ctx, result.Images[0].URL)
		return err
	})
	return out, err
}

func (c *FALClient) submit(ctx context.Context, prompt string) (*falSubmitResponse, error) {
	reqBody := falSubmitRequest{Prompt: prompt, ImageSize: c.imageSize, NumImages: 1}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}
	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/"+c.model, jsonData)
	if err != nil {
		return nil, err
	}
	var resp falSubmitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to parse submit response: %w", err)}
	}
	if resp.RequestID == "" {
		return nil, &TransientError{Err: ErrEmptyResult}
	}
	if resp.StatusURL == "" {
		resp.StatusURL = fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, c.model, resp.RequestID)
	}
	if resp.ResponseURL == "" {
		resp.ResponseURL = fmt.Sprintf("%s/%s/requests/%s", c.baseURL, c.model, resp.RequestID)
	}
	return &resp, nil
}

// await polls the queue status until COMPLETED.
func (c *FALClient) await(ctx context.Context, submitted *falSubmitResponse) error {
	for {
		body, err := c.do(ctx, http.MethodGet, submitted.StatusURL, nil)
		if err != nil {
			return err
		}
		var status falStatusResponse
		if err := json.Unmarshal(body, &status); err != nil {
			return &FatalError{Err: fmt.Errorf("failed to parse status response: %w", err)}
		}
		logging.Provider("[fal] request %s status=%s", submitted.RequestID, status.Status)
		if status.Status == "COMPLETED" {
			return nil
		}
		if err := sleepCtx(ctx, c.pollInterval); err != nil {
			return err
		}
	}
}

func (c *FALClient) result(ctx context.Context, submitted *falSubmitResponse) (*falResultResponse, error) {
	body, err := c.do(ctx, http.MethodGet, submitted.ResponseURL, nil)
	if err != nil {
		return nil, err
	}
	var resp falResultResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to parse result response: %w", err)}
	}
	return &resp, nil
}

func (c *FALClient) download(ctx context.Context, url string) ([]byte, error) {
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

func (c *FALClient) do(ctx context.Context, method, url string, jsonData []byte) ([]byte, error) {
	var reader io.Reader
	if jsonData != nil {
		reader = bytes.NewReader(jsonData)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if jsonData != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}
	return body, nil
}
