package expand

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func testDicts() Dictionaries {
	return Dictionaries{
		"hiring": {
			"gender": {"male", "female", "non-binary"},
			"race":   {"white", "black", "asian", "hispanic"},
			"age":    {"young", "middle-aged", "elderly"},
		},
	}
}

func TestExpandSingleSlot(t *testing.T) {
	e := New(testDicts())
	got, err := e.Expand("A {race} candidate.", "hiring", "bias")
	require.NoError(t, err)
	want := []string{
		"A white candidate.",
		"A black candidate.",
		"A asian candidate.",
		"A hispanic candidate.",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("expansion mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandNumberedPermutations(t *testing.T) {
	e := New(testDicts())
	got, err := e.Expand("A {gender1} and a {gender2} interview.", "hiring", "bias")
	require.NoError(t, err)
	// Ordered permutations of length 2 over 3 values.
	require.Len(t, got, 6)
	require.Contains(t, got, "A male and a female interview.")
	require.Contains(t, got, "A female and a male interview.")
	for _, p := range got {
		require.NotContains(t, p, "{")
	}
}

func TestExpandCartesianProduct(t *testing.T) {
	e := New(testDicts())
	got, err := e.Expand("A {age} {gender} {race} applicant.", "hiring", "bias")
	require.NoError(t, err)
	require.Len(t, got, 3*3*4)
	require.Equal(t, "A young male white applicant.", got[0])
}

func TestExpandBareRepeatedConsistently(t *testing.T) {
	e := New(testDicts())
	got, err := e.Expand("The {gender} worker said the {gender} worker left.", "hiring", "bias")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "The male worker said the male worker left.", got[0])
}

func TestExpandBareMixedWithNumbered(t *testing.T) {
	// The bare form counts as position 0 of the numbered set.
	e := New(testDicts())
	got, err := e.Expand("{gender} meets {gender1}.", "hiring", "bias")
	require.NoError(t, err)
	require.Len(t, got, 6)
	for _, p := range got {
		require.NotContains(t, p, "{")
	}
}

func TestExpandNoSlots(t *testing.T) {
	e := New(testDicts())
	got, err := e.Expand("A plain prompt.", "hiring", "bias")
	require.NoError(t, err)
	require.Equal(t, []string{"A plain prompt."}, got)
}

func TestExpandUnknownSlot(t *testing.T) {
	e := New(testDicts())
	_, err := e.Expand("A {religion} candidate.", "hiring", "bias")
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "religion", cfgErr.Slot)
}

func TestExpandPermutationOverflow(t *testing.T) {
	e := New(testDicts())
	_, err := e.Expand("{gender1} {gender2} {gender3} {gender4}", "hiring", "bias")
	var expErr *ExpansionError
	require.True(t, errors.As(err, &expErr))
	require.Equal(t, 4, expErr.Need)
	require.Equal(t, 3, expErr.Have)
}

func TestCountMatchesExpand(t *testing.T) {
	e := New(testDicts())
	templates := []string{
		"A {race} candidate.",
		"A {gender1} and a {gender2} interview.",
		"A {age} {gender} {race} applicant.",
		"No slots here.",
	}
	for _, tmpl := range templates {
		n, err := e.Count(tmpl, "hiring")
		require.NoError(t, err, tmpl)
		got, err := e.Expand(tmpl, "hiring", "bias")
		require.NoError(t, err, tmpl)
		require.Len(t, got, n, tmpl)
	}
}
