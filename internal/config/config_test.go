package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
common:
  num_samples_per_setting: 5
  flush_every: 1
providers:
  openai:
    enabled: true
    model_name: gpt-4o-mini
    outdir: out/openai
    csv_path: out/openai/images.csv
gpt:
  model: gpt-4o-mini
  max_tokens: 2048
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Common.NumSamplesPerSetting)
	require.Equal(t, 1, cfg.Common.FlushEvery)
	// Untouched defaults survive.
	require.Equal(t, 5, cfg.Common.Retries.MaxAttempts)
	require.Equal(t, "dall-e-3", cfg.DALLE.Model)
	require.Equal(t, "gpt-4o-mini", cfg.GPT.Model)

	p, enabled := cfg.Provider("openai")
	require.True(t, enabled)
	require.Equal(t, "out/openai", p.Outdir)

	_, enabled = cfg.Provider("gemini")
	require.False(t, enabled)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "config.yaml", `
common:
  num_samples_per_settings: 3
`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, cfgErr.Error(), "num_samples_per_settings")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateRanges(t *testing.T) {
	cfg := Default()
	cfg.Common.FlushEvery = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Providers["fal"] = ProviderConfig{Enabled: true}
	require.Error(t, cfg.Validate())
}

func TestDictionariesMerge(t *testing.T) {
	cfg := Default()
	cfg.Slots = map[string]map[string][]string{
		"hiring": {
			"gender":     {"male", "female"},
			"profession": {"engineer", "nurse"},
		},
	}
	dicts := cfg.Dictionaries()

	require.Equal(t, []string{"male", "female"}, dicts["hiring"]["gender"])
	require.Equal(t, []string{"engineer", "nurse"}, dicts["hiring"]["profession"])
	// Other domains keep the built-in axes.
	require.Equal(t, []string{"male", "female", "non-binary", "LGBTQIA+"}, dicts["legal"]["gender"])
	require.Equal(t, []string{"white", "black", "asian", "hispanic"}, dicts["hiring"]["race"])
}

func TestTemplateLookup(t *testing.T) {
	cfg := Default()
	tmpl, err := cfg.Template("legal", "bias")
	require.NoError(t, err)
	require.Contains(t, tmpl, "{gender1}")

	cfg.Templates = map[string]map[string]string{
		"legal": {"bias": "custom {race} template"},
	}
	tmpl, err = cfg.Template("legal", "bias")
	require.NoError(t, err)
	require.Equal(t, "custom {race} template", tmpl)

	_, err = cfg.Template("finance", "bias")
	require.Error(t, err)
}

func TestPromptRegistryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")

	r, err := LoadPromptRegistry(path)
	require.NoError(t, err)
	_, ok := r.Lookup("hiring", "bias")
	require.False(t, ok)

	require.NoError(t, r.Set("hiring", "bias", `out\prompts\hiring_bias.jsonl`))
	require.NoError(t, r.Set("legal", "toxicity", "out/prompts/legal_toxicity.jsonl"))

	reloaded, err := LoadPromptRegistry(path)
	require.NoError(t, err)
	p, ok := reloaded.Lookup("hiring", "bias")
	require.True(t, ok)
	require.Equal(t, "out/prompts/hiring_bias.jsonl", p)
	p, ok = reloaded.Lookup("legal", "toxicity")
	require.True(t, ok)
	require.Equal(t, "out/prompts/legal_toxicity.jsonl", p)
}

func TestCredentialResolverDotenv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"# keys\nexport FAL_KEY=\"fal-secret\"\nXAI_API_KEY=xai-secret\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("FAL_KEY", "")
	t.Setenv("XAI_API_KEY", "")

	r := NewCredentialResolver()
	key, err := r.Key("fal")
	require.NoError(t, err)
	require.Equal(t, "fal-secret", key)

	key, err = r.Key("grok")
	require.NoError(t, err)
	require.Equal(t, "xai-secret", key)
}

func TestCredentialResolverEnvWinsAndAlias(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-secret")

	r := NewCredentialResolver()
	key, err := r.Key("gemini")
	require.NoError(t, err)
	require.Equal(t, "google-secret", key)

	// veo shares the gemini credential chain.
	key, err = r.Key("veo")
	require.NoError(t, err)
	require.Equal(t, "google-secret", key)
}

func TestCredentialResolverMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	r := NewCredentialResolver()
	_, err = r.Key("openai")
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	require.Equal(t, "openai", credErr.Provider)
	require.NotContains(t, credErr.Error(), "secret")
}

func TestModelOverride(t *testing.T) {
	t.Setenv("GROK_MODEL", "grok-3")
	r := NewCredentialResolver()
	require.Equal(t, "grok-3", r.Model("grok", "grok-2-latest"))
	require.Equal(t, "dall-e-3", r.Model("fal", "dall-e-3"))
}
