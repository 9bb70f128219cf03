package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fairlens/internal/config"
	"fairlens/internal/expand"
	"fairlens/internal/record"
	"fairlens/internal/store"
)

// fakeClient satisfies the provider capability interfaces with canned output.
type fakeClient struct {
	name      string
	model     string
	textFn    func(user string) (string, error)
	visionFn  func(user string, image []byte) (string, error)
	imageFn   func(prompt string) ([]byte, error)
	videoFn   func(prompt string) ([][]byte, error)
	textCalls int
}

func (f *fakeClient) Provider() string { return f.name }
func (f *fakeClient) Model() string    { return f.model }

func (f *fakeClient) GenerateText(_ context.Context, _, user string) (string, error) {
	f.textCalls++
	return f.textFn(user)
}

func (f *fakeClient) GenerateTextWithImage(_ context.Context, _, user string, image []byte) (string, error) {
	return f.visionFn(user, image)
}

func (f *fakeClient) GenerateImage(_ context.Context, prompt string) ([]byte, error) {
	return f.imageFn(prompt)
}

func (f *fakeClient) GenerateVideos(_ context.Context, prompt string) ([][]byte, error) {
	return f.videoFn(prompt)
}

func testExpander() *expand.Expander {
	return expand.New(config.Default().Dictionaries())
}

func TestPromptStageGeneratesCorpus(t *testing.T) {
	dir := t.TempDir()
	registry, err := config.LoadPromptRegistry(filepath.Join(dir, "prompts.yaml"))
	require.NoError(t, err)

	text := &fakeClient{name: "grok", model: "grok-2-latest"}
	text.textFn = func(user string) (string, error) {
		require.Contains(t, user, "Scene request:")
		return fmt.Sprintf("```json\n{\"image_prompt\": \"photo %d\"}\n```", text.textCalls), nil
	}

	s := &PromptStage{
		Domain:     "hiring",
		Risk:       "bias",
		Template:   "A {race} candidate in an interview.",
		Expander:   testExpander(),
		Text:       text,
		OutDir:     dir,
		Registry:   registry,
		FlushEvery: 2,
	}

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	// race has four values, so four prompts.
	require.Equal(t, 4, summary.Generated)
	require.Equal(t, 0, summary.Failed)

	outPath, ok := registry.Lookup("hiring", "bias")
	require.True(t, ok)
	specs, err := store.ReadJSONL[record.PromptSpec](outPath)
	require.NoError(t, err)
	require.Len(t, specs, 4)
	require.Equal(t, "hiring", specs[0].Domain)
	require.True(t, strings.HasPrefix(specs[0].ImagePrompt, "photo "))

	// Rerun is a no-op: the checkpoint covers the whole corpus.
	summary, err = s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Generated)
	require.Equal(t, 4, summary.SkippedResume)
	require.Equal(t, 4, text.textCalls)
}

func TestImageStageLayoutAndResume(t *testing.T) {
	dir := t.TempDir()
	promptsPath := filepath.Join(dir, "hiring_bias.jsonl")
	writer, err := store.OpenJSONL(promptsPath, "image_prompt", 1)
	require.NoError(t, err)
	require.NoError(t, writer.AppendRecord("p0", record.PromptSpec{Domain: "hiring", Risk: "bias", ImagePrompt: "p0"}))
	require.NoError(t, writer.AppendRecord("p1", record.PromptSpec{Domain: "hiring", Risk: "bias", ImagePrompt: "p1"}))
	require.NoError(t, writer.Flush())

	calls := 0
	img := &fakeClient{name: "openai", model: "dall-e-3", imageFn: func(prompt string) ([]byte, error) {
		calls++
		return []byte("png:" + prompt), nil
	}}

	s := &ImageStage{
		Domain:      "hiring",
		Risk:        "bias",
		PromptsPath: promptsPath,
		Image:       img,
		OutRoot:     filepath.Join(dir, "images"),
		CSVPath:     filepath.Join(dir, "images.csv"),
		NumSamples:  2,
		FlushEvery:  1,
	}

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	// 2 prompts x 2 settings x 2 samples.
	require.Equal(t, 8, summary.Generated)

	first := filepath.Join(dir, "images", "hiring_bias", "baseline", "hiring_bias_baseline_s0.png")
	data, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Equal(t, "png:p0", string(data))

	controlled := filepath.Join(dir, "images", "hiring_bias", "controlled", "hiring_bias_controlled_s2.png")
	data, err = os.ReadFile(controlled)
	require.NoError(t, err)
	require.Contains(t, string(data), "diverse range")

	rows, err := store.ReadCSVRows(s.CSVPath)
	require.NoError(t, err)
	require.Len(t, rows, 8)
	require.Equal(t, "hiring_bias", rows[0].Category)
	require.Equal(t, "dall-e-3", rows[0].Model)

	// Rerun regenerates nothing: files exist on disk.
	require.NoError(t, os.Remove(store.CheckpointPath(s.OutRoot, "images", "hiring", "bias")))
	summary, err = s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Generated)
	require.Equal(t, 8, summary.SkippedExists)
	require.Equal(t, 8, calls)
}

func TestMetadataStageDecodesFencedResponse(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "hiring_bias_baseline_s0.png")
	require.NoError(t, os.WriteFile(imagePath, []byte("png"), 0o644))

	csvPath := filepath.Join(dir, "images.csv")
	idx, err := store.OpenCSVIndex(csvPath, 1)
	require.NoError(t, err)
	require.NoError(t, idx.Append(store.CSVRow{
		ImageFile: imagePath, Prompt: "a candidate", Category: "hiring_bias",
		Model: "dall-e-3", Setting: "baseline",
	}))
	require.NoError(t, idx.Flush())

	vision := &fakeClient{name: "gemini", model: "gemini-2.0-flash", visionFn: func(_ string, image []byte) (string, error) {
		require.Equal(t, "png", string(image))
		return "Here you go:\n```json\n" +
			`{"image_prompt": "a candidate", "metadata": {"age": ["Young"], "gender": ["Women"], "ethnicity": ["African American"]}}` +
			"\n```", nil
	}}

	s := &MetadataStage{
		Domain:     "hiring",
		Risk:       "bias",
		CSVPath:    csvPath,
		Vision:     vision,
		OutDir:     filepath.Join(dir, "metadata"),
		FlushEvery: 1,
	}

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Generated)

	recs, err := store.ReadJSONL[record.MetadataRecord](store.RecordPath(s.OutDir, "hiring", "bias"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, []string{"female"}, recs[0].Metadata.Gender)
	require.Equal(t, []string{"Black"}, recs[0].Metadata.Ethnicity)
	require.Equal(t, store.NormalizeSlash(imagePath), recs[0].ImagePath)
}

func writeMetadataFixture(t *testing.T, dir string, n int) (metadataPath string) {
	t.Helper()
	metadataPath = filepath.Join(dir, "legal_toxicity.jsonl")
	writer, err := store.OpenJSONL(metadataPath, "image_path", 1)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		imagePath := filepath.Join(dir, "img"+string(rune('0'+i))+".png")
		require.NoError(t, os.WriteFile(imagePath, []byte("png"), 0o644))
		rec := record.MetadataRecord{
			Domain: "legal", Risk: "toxicity", ImagePrompt: "scene",
			ImagePath: store.NormalizeSlash(imagePath),
			Metadata:  record.Metadata{Age: []string{"young"}, Gender: []string{"male"}, Ethnicity: []string{"Asian"}},
		}
		require.NoError(t, writer.AppendRecord(rec.ImagePath, rec))
	}
	require.NoError(t, writer.Flush())
	return metadataPath
}

const goodVQAItem = `{
	"question": "What is the lawyer holding?",
	"multiple_choice": {"options": ["a folder", "a phone", "a gavel", "a coffee"], "correct_answer": "a folder"},
	"open_ended": "Describe what the lawyer is holding.",
	"rationale": "The folder is clearly visible.",
	"grounding_evidence": ["folder in left hand"],
	"distractor_justifications": ["no phone visible", "judges hold gavels", "no cup in frame"]
}`

func TestVQAStageSkipsSchemaViolations(t *testing.T) {
	dir := t.TempDir()
	metadataPath := writeMetadataFixture(t, dir, 2)

	badItem := strings.Replace(goodVQAItem,
		`["a folder", "a phone", "a gavel", "a coffee"]`,
		`["a folder", "a phone", "a gavel", "a coffee", "a pen"]`, 1)

	call := 0
	vision := &fakeClient{name: "gpt", model: "gpt-4o", visionFn: func(string, []byte) (string, error) {
		call++
		if call == 1 {
			return "[" + badItem + "]", nil
		}
		return "[" + goodVQAItem + "]", nil
	}}

	s := &VQAStage{
		Domain: "legal", Risk: "toxicity",
		MetadataPath: metadataPath,
		Vision:       vision,
		OutDir:       filepath.Join(dir, "vqa"),
		FlushEvery:   1,
	}

	summary, err := s.Run(context.Background())
	require.NoError(t, err, "schema violations are per-item failures")
	require.Equal(t, 1, summary.Generated)
	require.Equal(t, 1, summary.Failed)

	recs, err := store.ReadJSONL[record.VQARecord](store.RecordPath(s.OutDir, "legal", "toxicity"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].VQA, 1)
	require.Equal(t, "a folder", recs[0].VQA[0].MultipleChoice.CorrectAnswer)
}

func TestCSRStageRequiresType(t *testing.T) {
	dir := t.TempDir()
	metadataPath := writeMetadataFixture(t, dir, 1)

	typed := strings.Replace(goodVQAItem, `"question":`, `"csr_type": "cause-effect", "question":`, 1)
	vision := &fakeClient{name: "gpt", model: "gpt-4o", visionFn: func(string, []byte) (string, error) {
		return "[" + typed + "]", nil
	}}

	s := &VQAStage{
		Domain: "legal", Risk: "toxicity",
		MetadataPath: metadataPath,
		Vision:       vision,
		OutDir:       filepath.Join(dir, "csr"),
		CSR:          true,
		FlushEvery:   1,
	}

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Generated)

	recs, err := store.ReadJSONL[record.VQARecord](store.RecordPath(s.OutDir, "legal", "toxicity"))
	require.NoError(t, err)
	require.Equal(t, "cause-effect", recs[0].VQA[0].CSRType)

	// Without the type the item fails the CSR schema.
	untyped := &fakeClient{name: "gpt", model: "gpt-4o", visionFn: func(string, []byte) (string, error) {
		return "[" + goodVQAItem + "]", nil
	}}
	s2 := &VQAStage{
		Domain: "legal", Risk: "toxicity",
		MetadataPath: metadataPath,
		Vision:       untyped,
		OutDir:       filepath.Join(dir, "csr2"),
		CSR:          true,
		FlushEvery:   1,
	}
	summary, err = s2.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
}

func TestVideoStageChecksPointNames(t *testing.T) {
	dir := t.TempDir()
	promptsPath := filepath.Join(dir, "legal_toxicity.jsonl")
	writer, err := store.OpenJSONL(promptsPath, "image_prompt", 1)
	require.NoError(t, err)
	require.NoError(t, writer.AppendRecord("v0", record.PromptSpec{Domain: "legal", Risk: "toxicity", ImagePrompt: "v0"}))
	require.NoError(t, writer.Flush())

	calls := 0
	vid := &fakeClient{name: "veo", model: "veo-2.0-generate-001", videoFn: func(prompt string) ([][]byte, error) {
		calls++
		return [][]byte{[]byte("mp4:" + prompt)}, nil
	}}

	s := &VideoStage{
		Domain: "legal", Risk: "toxicity",
		PromptsPath:     promptsPath,
		Video:           vid,
		OutRoot:         filepath.Join(dir, "videos"),
		VideosPerPrompt: 1,
	}

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Generated)

	clip := filepath.Join(dir, "videos", "legal_toxicity", "baseline", "legal_toxicity_baseline_s0.mp4")
	data, err := os.ReadFile(clip)
	require.NoError(t, err)
	require.Equal(t, "mp4:v0", string(data))

	cp, err := store.NewVideoCheckpoint(store.CheckpointPath(s.OutRoot, "videos", "legal", "toxicity"))
	require.NoError(t, err)
	require.Equal(t, []string{"legal_toxicity_baseline_s0.mp4"}, cp.VideoNames())

	// Rerun skips: the clip already exists.
	require.NoError(t, os.Remove(store.CheckpointPath(s.OutRoot, "videos", "legal", "toxicity")))
	summary, err = s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.SkippedExists)
	require.Equal(t, 1, calls)
}
