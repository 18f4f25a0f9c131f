package substitute

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustThesaurus(t *testing.T, entries map[string][]string) *Thesaurus {
	t.Helper()
	th, err := NewThesaurus(entries)
	require.NoError(t, err)
	return th
}

func TestSubstituteAlways(t *testing.T) {
	th := mustThesaurus(t, map[string][]string{
		"cat":   {"feline"},
		"sat":   {"rested"},
		"berry": {"fruit"},
		"pony":  {"filly"},
		"fox":   {"vixen"},
		"box":   {"crate"},
		"day":   {"morning"},
	})
	s := NewSubstituter(th, WithRate(1), WithSource(rand.NewPCG(1, 1)))

	testCases := []struct {
		in   string
		want string
	}{
		{"The cat sat.", "The feline rested."},
		{"Cat!", "Feline!"},
		{"CAT", "FELINE"},
		{`"cats,"`, `"felines,"`},
		{"berries", "fruits"},
		{"boxes", "crates"},
		{"Foxes?", "Vixens?"},
		{"days", "mornings"},
		{"unknown words stay", "unknown words stay"},
		{"...", "..."},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, _ := s.Substitute(tc.in)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPluralize(t *testing.T) {
	cases := map[string]string{
		"fruit":  "fruits",
		"filly":  "fillies",
		"day":    "days",
		"crate":  "crates",
		"box":    "boxes",
		"church": "churches",
		"bus":    "buses",
	}
	for in, want := range cases {
		assert.Equal(t, want, pluralize(in), "pluralize(%q)", in)
	}
}

func TestSubstituteNever(t *testing.T) {
	th := mustThesaurus(t, map[string][]string{"cat": {"feline"}})
	s := NewSubstituter(th, WithRate(0))

	got, n := s.Substitute("The cat sat.")
	assert.Equal(t, "The cat sat.", got)
	assert.Zero(t, n)
}

func TestSubstituteRate(t *testing.T) {
	th := mustThesaurus(t, map[string][]string{"word": {"term"}})
	s := NewSubstituter(th, WithSource(rand.NewPCG(42, 7)))
	assert.Equal(t, DefaultRate, s.Rate())

	text := strings.TrimSpace(strings.Repeat("word ", 4000))
	_, n := s.Substitute(text)
	assert.InDelta(t, 2000, n, 200, "about half of the words should be replaced")
}

func TestSubstituteWordsLeavesInputUntouched(t *testing.T) {
	th := mustThesaurus(t, map[string][]string{"cat": {"feline"}})
	s := NewSubstituter(th, WithRate(1))

	in := []string{"The", "cat."}
	out, n := s.SubstituteWords(in)
	assert.Equal(t, []string{"The", "feline."}, out)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"The", "cat."}, in)
}

func TestSubstituteNilThesaurus(t *testing.T) {
	s := NewSubstituter(nil, WithRate(1))
	got, n := s.Substitute("Nothing changes here.")
	assert.Equal(t, "Nothing changes here.", got)
	assert.Zero(t, n)
}
