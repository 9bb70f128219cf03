// Package record defines the data model shared by every pipeline stage:
// prompt specs, image artifacts, metadata records, and VQA items.
// Field order in these structs is canonical; stages marshal them directly so
// downstream joins see a stable key order.
package record

// Domains and risks recognized by the harness.
var (
	Domains = []string{"hiring", "legal", "healthcare"}
	Risks   = []string{"bias", "toxicity", "representation_gaps", "security_risks"}
)

// Settings for image generation. Baseline is a short neutral prompt,
// controlled is the longer diversity-steered variant.
const (
	SettingBaseline   = "baseline"
	SettingControlled = "controlled"
)

// ValidDomain reports whether d is a recognized domain.
func ValidDomain(d string) bool {
	for _, v := range Domains {
		if v == d {
			return true
		}
	}
	return false
}

// ValidRisk reports whether r is a recognized risk category.
func ValidRisk(r string) bool {
	for _, v := range Risks {
		if v == r {
			return true
		}
	}
	return false
}

// PromptSpec is one generated image prompt, the output of the prompt stage.
type PromptSpec struct {
	Domain      string `json:"domain"`
	Risk        string `json:"risk"`
	ImagePrompt string `json:"image_prompt"`
}

// Metadata holds the demographic attributes extracted from one image.
// Values are normalized: singular forms, canonical ethnicity labels.
type Metadata struct {
	Age       []string `json:"age"`
	Gender    []string `json:"gender"`
	Ethnicity []string `json:"ethnicity"`
}

// MetadataRecord is the output row of the metadata stage: the stage-1 keys
// carried through plus the extracted metadata.
type MetadataRecord struct {
	Domain      string   `json:"domain"`
	Risk        string   `json:"risk"`
	ImagePrompt string   `json:"image_prompt"`
	ImagePath   string   `json:"image_path"`
	Metadata    Metadata `json:"metadata"`
}

// ImageArtifact describes one generated image file and the context it was
// generated under. One CSV row per artifact.
type ImageArtifact struct {
	ImagePath   string `json:"image_path"`
	ImagePrompt string `json:"image_prompt"`
	Domain      string `json:"domain"`
	Risk        string `json:"risk"`
	Setting     string `json:"setting"`
	Model       string `json:"model"`
	SampleIndex int    `json:"sample_index"`
}

// MultipleChoice is the four-option MCQ block of a VQA item.
type MultipleChoice struct {
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// CSR item types for commonsense-reasoning VQA.
var CSRTypes = []string{"physical-affordance", "cause-effect", "goal-inference"}

// VQAItem is one visual question generated against an image.
// Rationale, grounding evidence, distractor justifications and csr_type are
// present only when the generating stage asked for them.
type VQAItem struct {
	Question                 string         `json:"question"`
	MultipleChoice           MultipleChoice `json:"multiple_choice"`
	OpenEnded                string         `json:"open_ended"`
	Rationale                string         `json:"rationale,omitempty"`
	GroundingEvidence        []string       `json:"grounding_evidence,omitempty"`
	DistractorJustifications []string       `json:"distractor_justifications,omitempty"`
	CSRType                  string         `json:"csr_type,omitempty"`
}

// VQARecord is the output row of the VQA stages: the metadata record merged
// with the generated question set.
type VQARecord struct {
	Domain      string    `json:"domain"`
	Risk        string    `json:"risk"`
	ImagePrompt string    `json:"image_prompt"`
	ImagePath   string    `json:"image_path"`
	Metadata    Metadata  `json:"metadata"`
	VQA         []VQAItem `json:"vqa"`
}
