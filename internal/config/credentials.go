package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CredentialError reports a missing API key without ever carrying its value.
type CredentialError struct {
	Provider string
	EnvVars  []string
}

func (e *CredentialError) Error() string {
	return "no credential for provider " + e.Provider + ": set " + strings.Join(e.EnvVars, " or ")
}

// envVarsByProvider maps a provider name to the env vars consulted in order.
var envVarsByProvider = map[string][]string{
	"openai": {"OPENAI_API_KEY"},
	"gemini": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"veo":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"grok":   {"XAI_API_KEY"},
	"fal":    {"FAL_KEY"},
}

// modelOverrideByProvider maps a provider name to the env var that overrides
// its configured model.
var modelOverrideByProvider = map[string]string{
	"openai": "OPENAI_MODEL",
	"gemini": "GEMINI_MODEL",
	"grok":   "GROK_MODEL",
}

// CredentialResolver resolves API keys once and caches them for the run.
// Keys come from the process environment, falling back to a .env file found
// by walking up from the working directory. Key values are never logged.
type CredentialResolver struct {
	mu      sync.Mutex
	dotenv  map[string]string
	loaded  bool
	resolve map[string]string
}

// NewCredentialResolver creates a resolver with an empty cache.
func NewCredentialResolver() *CredentialResolver {
	return &CredentialResolver{resolve: make(map[string]string)}
}

// Key returns the API key for a provider, or a CredentialError naming the
// env vars that would satisfy it.
func (r *CredentialResolver) Key(providerName string) (string, error) {
	vars, ok := envVarsByProvider[providerName]
	if !ok {
		return "", &CredentialError{Provider: providerName}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.resolve[providerName]; ok {
		return key, nil
	}
	for _, v := range vars {
		if key := os.Getenv(v); key != "" {
			r.resolve[providerName] = key
			return key, nil
		}
	}
	r.loadDotenv()
	for _, v := range vars {
		if key := r.dotenv[v]; key != "" {
			r.resolve[providerName] = key
			return key, nil
		}
	}
	return "", &CredentialError{Provider: providerName, EnvVars: vars}
}

// Model returns the env override for a provider's model, or the fallback.
func (r *CredentialResolver) Model(providerName, fallback string) string {
	if v, ok := modelOverrideByProvider[providerName]; ok {
		if m := os.Getenv(v); m != "" {
			return m
		}
	}
	return fallback
}

// loadDotenv parses the nearest .env file, searching upward from the working
// directory. Called with the mutex held; runs at most once.
func (r *CredentialResolver) loadDotenv() {
	if r.loaded {
		return
	}
	r.loaded = true
	r.dotenv = make(map[string]string)

	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		path := filepath.Join(dir, ".env")
		if f, err := os.Open(path); err == nil {
			parseDotenv(f, r.dotenv)
			f.Close()
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// parseDotenv reads KEY=VALUE lines, skipping comments and blanks. Values may
// be single- or double-quoted.
func parseDotenv(f *os.File, out map[string]string) {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
			v = v[1 : len(v)-1]
		}
		if k != "" {
			out[k] = v
		}
	}
}
