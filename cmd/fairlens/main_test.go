package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fairlens/internal/config"
	"fairlens/internal/pipeline"
)

func testRuntime(t *testing.T) *runtime {
	t.Helper()
	return &runtime{cfg: config.Default(), out: t.TempDir()}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"prompts", "images", "videos", "metadata", "vqa", "csr-vqa", "all-stages"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, cmd.Use)
	}
}

func TestPairsSelection(t *testing.T) {
	rt := testRuntime(t)

	domainFlag, riskFlag = "", ""
	pairs, err := rt.pairs()
	require.NoError(t, err)
	require.Len(t, pairs, 12)

	domainFlag, riskFlag = "legal", "toxicity"
	t.Cleanup(func() { domainFlag, riskFlag = "", "" })
	pairs, err = rt.pairs()
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"legal", "toxicity"}}, pairs)

	domainFlag = "finance"
	_, err = rt.pairs()
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestImagesCSVOverride(t *testing.T) {
	rt := testRuntime(t)
	require.Equal(t, filepath.Join(rt.out, "images.csv"), rt.imagesCSV("openai"))

	rt.cfg.Providers = map[string]config.ProviderConfig{
		"openai": {Enabled: true, Outdir: "x", CSVPath: "custom/images.csv"},
	}
	require.Equal(t, "custom/images.csv", rt.imagesCSV("openai"))
}

func TestSummaryLineReportsPathsAndStartIndex(t *testing.T) {
	line := summaryLine(pipeline.StageMetadata, "hiring", "bias",
		`out\metadata\hiring_bias.jsonl`, "out/metadata/checkpoint_metadata_hiring_bias.txt",
		pipeline.Summary{Total: 10, Generated: 4, SkippedResume: 6, StartIndex: 6})

	require.Contains(t, line, "start_index=6")
	require.Contains(t, line, "skipped(checkpoint)=6")
	require.Contains(t, line, "output: out/metadata/hiring_bias.jsonl")
	require.Contains(t, line, "checkpoint: out/metadata/checkpoint_metadata_hiring_bias.txt")
}

func TestStageBlockMapping(t *testing.T) {
	rt := testRuntime(t)
	require.Equal(t, "grok-2-latest", rt.stageBlock("grok").Model)
	require.Equal(t, "veo-2.0-generate-001", rt.stageBlock("veo").Model)
	require.Equal(t, config.StageConfig{}, rt.stageBlock("fal"))
}
