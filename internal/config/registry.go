package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"fairlens/internal/store"
)

// PromptRegistry maps domain/risk pairs to the JSONL file holding their
// generated prompts. The prompt stage records every file it writes here so
// downstream stages and reruns find them without directory scans.
type PromptRegistry struct {
	path    string
	Prompts map[string]map[string]string `yaml:"prompts"`
}

// LoadPromptRegistry reads the registry at path, or returns an empty one if
// the file does not exist yet.
func LoadPromptRegistry(path string) (*PromptRegistry, error) {
	r := &PromptRegistry{path: path, Prompts: make(map[string]map[string]string)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, &ConfigError{Path: path, Reason: err.Error()}
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, &ConfigError{Path: path, Reason: err.Error()}
	}
	if r.Prompts == nil {
		r.Prompts = make(map[string]map[string]string)
	}
	return r, nil
}

// Lookup returns the prompt file registered for a domain/risk pair.
func (r *PromptRegistry) Lookup(domain, risk string) (string, bool) {
	byRisk, ok := r.Prompts[domain]
	if !ok {
		return "", false
	}
	p, ok := byRisk[risk]
	return p, ok
}

// Set records the prompt file for a domain/risk pair and rewrites the
// registry atomically, so a crash mid-update never leaves a torn file.
func (r *PromptRegistry) Set(domain, risk, jsonlPath string) error {
	if r.Prompts[domain] == nil {
		r.Prompts[domain] = make(map[string]string)
	}
	r.Prompts[domain][risk] = store.NormalizeSlash(jsonlPath)

	data, err := yaml.Marshal(r)
	if err != nil {
		return &ConfigError{Path: r.path, Reason: err.Error()}
	}
	if err := store.WriteAtomic(r.path, data); err != nil {
		return &ConfigError{Path: r.path, Reason: err.Error()}
	}
	return nil
}
