package decode

import (
	"strings"

	"fairlens/internal/record"
)

// canonicalEthnicity maps common model aliases onto the canonical label set.
var canonicalEthnicity = map[string]string{
	"african american": "Black",
	"african-american": "Black",
	"afro-american":    "Black",
	"black":            "Black",
	"caucasian":        "White",
	"white":            "White",
	"european":         "White",
	"asian":            "Asian",
	"east asian":       "Asian",
	"south asian":      "South Asian",
	"indian":           "South Asian",
	"hispanic":         "Hispanic",
	"latino":           "Hispanic",
	"latina":           "Hispanic",
	"latinx":           "Hispanic",
	"middle eastern":   "Middle Eastern",
	"native american":  "Indigenous",
	"indigenous":       "Indigenous",
}

// singularGender folds plural and colloquial gender terms to singular form.
var singularGender = map[string]string{
	"males":   "male",
	"females": "female",
	"men":     "male",
	"man":     "male",
	"women":   "female",
	"woman":   "female",
	"boys":    "male",
	"boy":     "male",
	"girls":   "female",
	"girl":    "female",
}

// PromptSpec decodes a stage-1 prompt spec and enforces a non-empty prompt.
func PromptSpec(raw string) (record.PromptSpec, error) {
	payload, err := ExtractObject(raw)
	if err != nil {
		return record.PromptSpec{}, &DecodeError{Err: err}
	}
	var spec record.PromptSpec
	if err := unmarshalStrict(payload, &spec); err != nil {
		return record.PromptSpec{}, err
	}
	if strings.TrimSpace(spec.ImagePrompt) == "" {
		return record.PromptSpec{}, &SchemaError{Field: "image_prompt", Reason: "must be non-empty"}
	}
	return spec, nil
}

// metadataEnvelope matches the shape the metadata-extraction prompt asks for.
type metadataEnvelope struct {
	ImagePrompt string          `json:"image_prompt"`
	Metadata    record.Metadata `json:"metadata"`
}

// Metadata decodes a metadata-extraction response and normalizes the
// attribute lists (plural to singular, alias to canonical ethnicity).
func Metadata(raw string) (record.Metadata, error) {
	payload, err := ExtractObject(raw)
	if err != nil {
		return record.Metadata{}, &DecodeError{Err: err}
	}
	var env metadataEnvelope
	if err := unmarshalStrict(payload, &env); err != nil {
		return record.Metadata{}, err
	}
	md := env.Metadata
	if len(md.Age) == 0 && len(md.Gender) == 0 && len(md.Ethnicity) == 0 {
		// Some models return the metadata object without the envelope.
		if err := unmarshalStrict(payload, &md); err != nil {
			return record.Metadata{}, err
		}
	}
	return normalizeMetadata(md), nil
}

func normalizeMetadata(md record.Metadata) record.Metadata {
	out := record.Metadata{
		Age:       make([]string, 0, len(md.Age)),
		Gender:    make([]string, 0, len(md.Gender)),
		Ethnicity: make([]string, 0, len(md.Ethnicity)),
	}
	for _, a := range md.Age {
		out.Age = append(out.Age, strings.TrimSpace(a))
	}
	for _, g := range md.Gender {
		g = strings.ToLower(strings.TrimSpace(g))
		if canonical, ok := singularGender[g]; ok {
			g = canonical
		}
		out.Gender = append(out.Gender, g)
	}
	for _, e := range md.Ethnicity {
		key := strings.ToLower(strings.TrimSpace(e))
		if canonical, ok := canonicalEthnicity[key]; ok {
			out.Ethnicity = append(out.Ethnicity, canonical)
		} else {
			out.Ethnicity = append(out.Ethnicity, strings.TrimSpace(e))
		}
	}
	return out
}

// VQAOptions controls which optional fields the VQA schema requires.
type VQAOptions struct {
	RequireRationale   bool
	RequireGrounding   bool
	RequireDistractors bool
	RequireCSRType     bool
}

// VQAItems decodes a list of VQA items and validates each against the stage
// schema: exactly four options, the correct answer among them, non-empty
// question and open-ended variant.
func VQAItems(raw string, opts VQAOptions) ([]record.VQAItem, error) {
	payload, err := ExtractArray(raw)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	var items []record.VQAItem
	if err := unmarshalStrict(payload, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &SchemaError{Field: "vqa", Reason: "empty item list"}
	}
	for _, item := range items {
		if err := validateVQAItem(item, opts); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func validateVQAItem(item record.VQAItem, opts VQAOptions) error {
	if strings.TrimSpace(item.Question) == "" {
		return &SchemaError{Field: "question", Reason: "must be non-empty"}
	}
	if len(item.MultipleChoice.Options) != 4 {
		return &SchemaError{Field: "multiple_choice.options", Reason: "must contain exactly 4 options"}
	}
	found := false
	for _, opt := range item.MultipleChoice.Options {
		if opt == item.MultipleChoice.CorrectAnswer {
			found = true
			break
		}
	}
	if !found {
		return &SchemaError{Field: "multiple_choice.correct_answer", Reason: "must be one of the options"}
	}
	if strings.TrimSpace(item.OpenEnded) == "" {
		return &SchemaError{Field: "open_ended", Reason: "must be non-empty"}
	}
	if opts.RequireRationale && strings.TrimSpace(item.Rationale) == "" {
		return &SchemaError{Field: "rationale", Reason: "required by stage schema"}
	}
	if opts.RequireGrounding && len(item.GroundingEvidence) == 0 {
		return &SchemaError{Field: "grounding_evidence", Reason: "required by stage schema"}
	}
	if opts.RequireDistractors && len(item.DistractorJustifications) != 3 {
		return &SchemaError{Field: "distractor_justifications", Reason: "must contain exactly 3 entries"}
	}
	if opts.RequireCSRType {
		valid := false
		for _, t := range record.CSRTypes {
			if item.CSRType == t {
				valid = true
				break
			}
		}
		if !valid {
			return &SchemaError{Field: "csr_type", Reason: "must be one of physical-affordance, cause-effect, goal-inference"}
		}
	}
	return nil
}
