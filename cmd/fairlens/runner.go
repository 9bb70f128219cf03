package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"fairlens/internal/config"
	"fairlens/internal/expand"
	"fairlens/internal/pipeline"
	"fairlens/internal/provider"
	"fairlens/internal/record"
	"fairlens/internal/store"
)

// runtime bundles everything a stage command needs: resolved config, cached
// credentials, the prompt registry and the run ledger.
type runtime struct {
	cfg      *config.Config
	creds    *config.CredentialResolver
	registry *config.PromptRegistry
	ledger   *store.Ledger
	out      string
}

func newRuntime() (*runtime, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	}

	registryPath := promptYAML
	if registryPath == "" {
		registryPath = filepath.Join(outRoot, "prompts.yaml")
	}
	registry, err := config.LoadPromptRegistry(registryPath)
	if err != nil {
		return nil, err
	}

	ledger, err := store.OpenLedger(filepath.Join(outRoot, "runs.db"))
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		creds:    config.NewCredentialResolver(),
		registry: registry,
		ledger:   ledger,
		out:      outRoot,
	}, nil
}

func (rt *runtime) Close() {
	if rt.ledger != nil {
		_ = rt.ledger.Close()
	}
}

// pairs returns the domain/risk pairs selected by the global flags, or every
// combination when neither flag is set.
func (rt *runtime) pairs() ([][2]string, error) {
	domains := record.Domains
	if domainFlag != "" {
		if !record.ValidDomain(domainFlag) {
			return nil, &config.ConfigError{Reason: fmt.Sprintf("unknown domain %q (want one of %v)", domainFlag, record.Domains)}
		}
		domains = []string{domainFlag}
	}
	risks := record.Risks
	if riskFlag != "" {
		if !record.ValidRisk(riskFlag) {
			return nil, &config.ConfigError{Reason: fmt.Sprintf("unknown risk %q (want one of %v)", riskFlag, record.Risks)}
		}
		risks = []string{riskFlag}
	}
	var out [][2]string
	for _, d := range domains {
		for _, r := range risks {
			out = append(out, [2]string{d, r})
		}
	}
	return out, nil
}

// stageBlock maps a provider name to its generation-parameter block.
func (rt *runtime) stageBlock(name string) config.StageConfig {
	switch name {
	case "openai":
		return rt.cfg.GPT
	case "gemini":
		return rt.cfg.Gemini
	case "grok":
		return rt.cfg.Grok
	case "veo":
		return rt.cfg.Veo
	default:
		return config.StageConfig{}
	}
}

// options resolves the credential and generation settings for one provider.
func (rt *runtime) options(name string) (provider.Options, error) {
	key, err := rt.creds.Key(name)
	if err != nil {
		return provider.Options{}, err
	}
	block := rt.stageBlock(name)
	model := block.Model
	pb, _ := rt.cfg.Provider(name)
	if pb.ModelName != "" {
		model = pb.ModelName
	}
	opts := provider.Options{
		APIKey:           key,
		BaseURL:          pb.BaseURL,
		Model:            rt.creds.Model(name, model),
		MaxTokens:        block.MaxTokens,
		Temperature:      block.Temperature,
		AspectRatio:      block.AspectRatio,
		PersonGeneration: block.PersonGeneration,
		VideosPerPrompt:  block.BatchSize,
		Retry: provider.RetryPolicy{
			MaxAttempts: rt.cfg.Common.Retries.MaxAttempts,
			MaxBackoff:  rt.cfg.Common.Retries.MaxBackoffDuration(),
		},
	}
	if name == "openai" {
		opts.ImageModel = rt.cfg.DALLE.Model
		opts.ImageSize = rt.cfg.DALLE.ImageSize
	}
	return opts, nil
}

func (rt *runtime) client(ctx context.Context, name string) (provider.Client, error) {
	opts, err := rt.options(name)
	if err != nil {
		return nil, err
	}
	return provider.New(ctx, name, opts)
}

// expander builds the template expander over the merged dictionaries.
func (rt *runtime) expander() *expand.Expander {
	return expand.New(rt.cfg.Dictionaries())
}

// Stage directory layout under the output root.

func (rt *runtime) promptsDir() string  { return filepath.Join(rt.out, "prompts") }
func (rt *runtime) imagesRoot() string  { return filepath.Join(rt.out, "images") }
func (rt *runtime) videosRoot() string  { return filepath.Join(rt.out, "videos") }
func (rt *runtime) metadataDir() string { return filepath.Join(rt.out, "metadata") }
func (rt *runtime) vqaDir() string      { return filepath.Join(rt.out, "vqa") }
func (rt *runtime) csrDir() string      { return filepath.Join(rt.out, "csr_vqa") }

// imagesCSV resolves the CSV index path, honoring a provider-block override.
func (rt *runtime) imagesCSV(providerName string) string {
	if pb, ok := rt.cfg.Provider(providerName); ok && pb.CSVPath != "" {
		return pb.CSVPath
	}
	return filepath.Join(rt.out, "images.csv")
}

// promptsPath finds the prompt JSONL for a pair: registry first, then the
// conventional location.
func (rt *runtime) promptsPath(domain, risk string) string {
	if p, ok := rt.registry.Lookup(domain, risk); ok {
		return p
	}
	return store.RecordPath(rt.promptsDir(), domain, risk)
}

// metadataPath is the conventional metadata JSONL location for a pair.
func (rt *runtime) metadataPath(domain, risk string) string {
	return store.RecordPath(rt.metadataDir(), domain, risk)
}

// summaryLine renders the user-facing completion line: the counts, the
// resume start index, and the primary output and checkpoint locations.
func summaryLine(stage pipeline.StageID, domain, risk, outPath, checkpointPath string, s pipeline.Summary) string {
	return fmt.Sprintf("[%s] %s/%s: %s start_index=%d\n  output: %s\n  checkpoint: %s",
		stage, domain, risk, s, s.StartIndex,
		store.NormalizeSlash(outPath), store.NormalizeSlash(checkpointPath))
}

func printSummary(stage pipeline.StageID, domain, risk, outPath, checkpointPath string, s pipeline.Summary) {
	fmt.Println(summaryLine(stage, domain, risk, outPath, checkpointPath, s))
	logger.Info("stage pair finished",
		zap.String("stage", string(stage)),
		zap.String("domain", domain),
		zap.String("risk", risk),
		zap.String("output", outPath),
		zap.Int("start_index", s.StartIndex),
		zap.Int("generated", s.Generated),
		zap.Int("failed", s.Failed))
}
