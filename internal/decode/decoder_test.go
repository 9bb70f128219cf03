package decode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"fairlens/internal/record"
)

func TestExtractObjectFenced(t *testing.T) {
	raw := "```json\n{\"domain\":\"hiring\",\"risk\":\"bias\",\"image_prompt\":\"X\"}\n```"
	payload, err := ExtractObject(raw)
	require.NoError(t, err)
	require.Equal(t, `{"domain":"hiring","risk":"bias","image_prompt":"X"}`, payload)
}

func TestExtractObjectRawJSON(t *testing.T) {
	payload, err := ExtractObject(`{"a":1}`)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, payload)
}

func TestExtractObjectNoisySurroundings(t *testing.T) {
	raw := "Sure! Here is the result you asked for:\n{\"a\": \"b\"}\nHope that helps."
	payload, err := ExtractObject(raw)
	require.NoError(t, err)
	require.Equal(t, `{"a": "b"}`, payload)
}

func TestExtractObjectBracesInsideStrings(t *testing.T) {
	raw := `{"text": "a { brace } inside", "n": 1}`
	payload, err := ExtractObject(raw)
	require.NoError(t, err)
	require.Equal(t, raw, payload)
}

func TestExtractObjectEmpty(t *testing.T) {
	_, err := ExtractObject("   \n  ")
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestExtractObjectNoJSON(t *testing.T) {
	_, err := ExtractObject("I cannot answer that.")
	require.ErrorIs(t, err, ErrMissingJSON)
}

func TestPromptSpecValid(t *testing.T) {
	spec, err := PromptSpec("```json\n{\"domain\":\"legal\",\"risk\":\"toxicity\",\"image_prompt\":\"a courtroom\"}\n```")
	require.NoError(t, err)
	require.Equal(t, "legal", spec.Domain)
	require.Equal(t, "a courtroom", spec.ImagePrompt)
}

func TestPromptSpecEmptyPrompt(t *testing.T) {
	_, err := PromptSpec(`{"domain":"legal","risk":"toxicity","image_prompt":"  "}`)
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	require.Equal(t, "image_prompt", schemaErr.Field)
}

func TestMetadataNormalization(t *testing.T) {
	raw := "```json\n{\"image_prompt\":\"X\",\"metadata\":{\"age\":[\"30\"],\"gender\":[\"Women\"],\"ethnicity\":[\"African American\"]}}\n```"
	md, err := Metadata(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"30"}, md.Age)
	require.Equal(t, []string{"female"}, md.Gender)
	require.Equal(t, []string{"Black"}, md.Ethnicity)
}

func TestMetadataBareObject(t *testing.T) {
	md, err := Metadata(`{"age":["elderly"],"gender":["males"],"ethnicity":["Caucasian"]}`)
	require.NoError(t, err)
	require.Equal(t, []string{"male"}, md.Gender)
	require.Equal(t, []string{"White"}, md.Ethnicity)
}

func vqaItemJSON(options string) string {
	return `{
		"question": "What is shown?",
		"multiple_choice": {"options": ` + options + `, "correct_answer": "a"},
		"open_ended": "Describe the scene."
	}`
}

func TestVQAItemsValid(t *testing.T) {
	raw := "[" + vqaItemJSON(`["a","b","c","d"]`) + "]"
	items, err := VQAItems(raw, VQAOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "a", items[0].MultipleChoice.CorrectAnswer)
}

func TestVQAItemsFiveOptions(t *testing.T) {
	raw := "[" + vqaItemJSON(`["a","b","c","d","e"]`) + "]"
	_, err := VQAItems(raw, VQAOptions{})
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	require.Equal(t, "multiple_choice.options", schemaErr.Field)
}

func TestVQAItemsCorrectAnswerNotInOptions(t *testing.T) {
	raw := `[{
		"question": "Q",
		"multiple_choice": {"options": ["a","b","c","d"], "correct_answer": "z"},
		"open_ended": "O"
	}]`
	_, err := VQAItems(raw, VQAOptions{})
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	require.Equal(t, "multiple_choice.correct_answer", schemaErr.Field)
}

func TestVQAItemsSingleObjectWrapped(t *testing.T) {
	// A bare object response decodes as a one-element list.
	items, err := VQAItems(vqaItemJSON(`["a","b","c","d"]`), VQAOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestVQAItemsCSRType(t *testing.T) {
	item := record.VQAItem{
		Question:       "Q",
		MultipleChoice: record.MultipleChoice{Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "a"},
		OpenEnded:      "O",
		CSRType:        "time-travel",
	}
	err := validateVQAItem(item, VQAOptions{RequireCSRType: true})
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))

	item.CSRType = "cause-effect"
	require.NoError(t, validateVQAItem(item, VQAOptions{RequireCSRType: true}))
}
