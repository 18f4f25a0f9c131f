// Package substitute swaps words in generated text for synonyms drawn from a
// user-supplied thesaurus.
package substitute

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidThesaurus is returned for a thesaurus file that does not decode
// or holds an empty key.
var ErrInvalidThesaurus = errors.New("invalid thesaurus")

// Thesaurus maps lower-case words to their synonyms.
//
// The file format is a YAML mapping of word to list:
//
//	big: [large, huge, vast]
//	quickly:
//	  - swiftly
//	  - rapidly
type Thesaurus struct {
	entries map[string][]string
}

// NewThesaurus builds a Thesaurus from entries. Keys are lower-cased,
// synonyms equal to their key are dropped and duplicates are merged.
func NewThesaurus(entries map[string][]string) (*Thesaurus, error) {
	t := &Thesaurus{entries: make(map[string][]string, len(entries))}
	for word, synonyms := range entries {
		key := strings.ToLower(strings.TrimSpace(word))
		if key == "" || strings.ContainsAny(key, " \t\n") {
			return nil, fmt.Errorf("%w: key %q must be a single word", ErrInvalidThesaurus, word)
		}
		seen := make(map[string]bool)
		for _, s := range t.entries[key] {
			seen[strings.ToLower(s)] = true
		}
		for _, s := range synonyms {
			s = strings.TrimSpace(s)
			if s == "" || strings.EqualFold(s, key) || seen[strings.ToLower(s)] {
				continue
			}
			seen[strings.ToLower(s)] = true
			t.entries[key] = append(t.entries[key], s)
		}
	}
	for key, synonyms := range t.entries {
		if len(synonyms) == 0 {
			delete(t.entries, key)
			continue
		}
		sort.Strings(synonyms)
	}
	return t, nil
}

// LoadThesaurus decodes a YAML thesaurus from r.
func LoadThesaurus(r io.Reader) (*Thesaurus, error) {
	var entries map[string][]string
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return NewThesaurus(nil)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidThesaurus, err)
	}
	return NewThesaurus(entries)
}

// LoadThesaurusFile reads a YAML thesaurus from path.
func LoadThesaurusFile(path string) (*Thesaurus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return LoadThesaurus(f)
}

// Synonyms returns the synonyms of word, matched without regard to case.
func (t *Thesaurus) Synonyms(word string) []string {
	if t == nil {
		return nil
	}
	return t.entries[strings.ToLower(word)]
}

// Len returns the number of words with at least one synonym.
func (t *Thesaurus) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
