package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, MaxBackoff: time.Second, sleep: noSleep}
}

func TestOpenAIGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\": true}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Options{APIKey: "test-key", BaseURL: srv.URL, Retry: fastRetry()})
	out, err := c.GenerateText(context.Background(), "sys", "user")
	require.NoError(t, err)
	require.Equal(t, `{"ok": true}`, out)
}

func TestOpenAIRateLimitRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"done"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	out, err := c.GenerateText(context.Background(), "", "hi")
	require.NoError(t, err)
	require.Equal(t, "done", out)
	require.Equal(t, int32(3), calls.Load())
}

func TestOpenAIFatalStatusNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	_, err := c.GenerateText(context.Background(), "", "hi")
	require.True(t, IsFatal(err))
	require.Equal(t, int32(1), calls.Load())
}

func TestOpenAIGenerateImageB64(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/images/generations", r.URL.Path)
		resp := map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	out, err := c.GenerateImage(context.Background(), "a dog")
	require.NoError(t, err)
	require.Equal(t, png, out)
}

func TestOpenAIGenerateImageURLShape(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"data": []map[string]string{{"url": srv.URL + "/file.png"}}}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/file.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(png)
	})

	c := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	out, err := c.GenerateImage(context.Background(), "a cat")
	require.NoError(t, err)
	require.Equal(t, png, out)
}

func TestGeminiGenerateTextWithImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, ":generateContent")
		require.Equal(t, "key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		require.NotNil(t, req.Contents[0].Parts[1].InlineData)
		require.Equal(t, "image/png", req.Contents[0].Parts[1].InlineData.MimeType)

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"metadata\":{}}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(Options{APIKey: "key", BaseURL: srv.URL, Retry: fastRetry()})
	out, err := c.GenerateTextWithImage(context.Background(), "", "describe", []byte{1, 2})
	require.NoError(t, err)
	require.Equal(t, `{"metadata":{}}`, out)
}

func TestXAIGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"grok says hi"}}]}`))
	}))
	defer srv.Close()

	c := NewXAIClient(Options{APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	out, err := c.GenerateText(context.Background(), "", "hi")
	require.NoError(t, err)
	require.Equal(t, "grok says hi", out)
}

func TestFALGenerateImagePolling(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var statusCalls atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/fal-ai/flux/dev", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Key fal-key", r.Header.Get("Authorization"))
		resp := falSubmitResponse{
			RequestID:   "req-1",
			StatusURL:   srv.URL + "/status",
			ResponseURL: srv.URL + "/result",
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := "IN_PROGRESS"
		if statusCalls.Add(1) >= 3 {
			status = "COMPLETED"
		}
		_ = json.NewEncoder(w).Encode(falStatusResponse{Status: status})
	})
	mux.HandleFunc("/result", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"images": []map[string]string{{"url": srv.URL + "/img.png"}}}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(png)
	})

	c := NewFALClient(Options{
		APIKey:       "fal-key",
		BaseURL:      srv.URL,
		Model:        "fal-ai/flux/dev",
		PollInterval: time.Millisecond,
		Retry:        fastRetry(),
	})
	out, err := c.GenerateImage(context.Background(), "a bird")
	require.NoError(t, err)
	require.Equal(t, png, out)
	require.GreaterOrEqual(t, statusCalls.Load(), int32(3))
}

func TestFactoryRegistry(t *testing.T) {
	c, err := New(context.Background(), "openai", Options{APIKey: "k"})
	require.NoError(t, err)
	require.Equal(t, "openai", c.Provider())

	_, err = AsText(c)
	require.NoError(t, err)
	_, err = AsImage(c)
	require.NoError(t, err)
	_, err = AsVideo(c)
	require.Error(t, err)

	g, err := New(context.Background(), "grok", Options{APIKey: "k"})
	require.NoError(t, err)
	_, err = AsVision(g)
	require.Error(t, err)

	_, err = New(context.Background(), "nonesuch", Options{})
	require.Error(t, err)
}
