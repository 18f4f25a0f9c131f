package substitute

import (
	crand "crypto/rand"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"
)

// DefaultRate is the probability that an eligible word is replaced.
const DefaultRate = 0.5

// Substituter replaces words with synonyms at a fixed rate. It is safe for
// concurrent use, and its thesaurus can be swapped while in use.
type Substituter struct {
	thesaurus atomic.Pointer[Thesaurus]
	rate      float64
	mu        sync.Mutex
	rng       *rand.Rand
	logger    *slog.Logger
}

// Option configures a Substituter.
type Option func(*Substituter)

// WithRate sets the replacement probability, clamped to [0, 1].
func WithRate(rate float64) Option {
	return func(s *Substituter) {
		s.rate = min(max(rate, 0), 1)
	}
}

// WithSource sets the random source. Pass a fixed-seed source for
// reproducible output.
func WithSource(src rand.Source) Option {
	return func(s *Substituter) {
		if src != nil {
			s.rng = rand.New(src)
		}
	}
}

// NewSubstituter creates a Substituter over thesaurus. Without WithSource,
// randomness comes from a ChaCha8 source seeded from crypto/rand.
func NewSubstituter(thesaurus *Thesaurus, opts ...Option) *Substituter {
	s := &Substituter{
		rate:   DefaultRate,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		var seed [32]byte
		_, _ = crand.Read(seed[:])
		s.rng = rand.New(rand.NewChaCha8(seed))
	}
	s.SetThesaurus(thesaurus)
	return s
}

// SetLogger sets the logger for the Substituter. By default, all logs are discarded.
func (s *Substituter) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetThesaurus replaces the thesaurus used by later calls.
func (s *Substituter) SetThesaurus(t *Thesaurus) {
	if t == nil {
		t, _ = NewThesaurus(nil)
	}
	s.thesaurus.Store(t)
}

// Thesaurus returns the thesaurus currently in use.
func (s *Substituter) Thesaurus() *Thesaurus {
	return s.thesaurus.Load()
}

// Rate returns the replacement probability.
func (s *Substituter) Rate() float64 {
	return s.rate
}

// Substitute replaces words of text and returns the result along with the
// number of replacements. Words are separated by single spaces in the output.
func (s *Substituter) Substitute(text string) (string, int) {
	words, n := s.SubstituteWords(strings.Fields(text))
	return strings.Join(words, " "), n
}

// SubstituteWords returns a copy of words with replacements applied.
func (s *Substituter) SubstituteWords(words []string) ([]string, int) {
	t := s.thesaurus.Load()
	out := make([]string, len(words))
	var replaced int

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, word := range words {
		out[i] = word
		lead, core, trail := splitPunct(word)
		if core == "" {
			continue
		}
		synonyms, plural := lookup(t, core)
		if len(synonyms) == 0 || s.rng.Float64() >= s.rate {
			continue
		}
		next := synonyms[s.rng.IntN(len(synonyms))]
		if plural {
			next = pluralize(next)
		}
		out[i] = lead + matchCase(core, next) + trail
		replaced++
	}
	return out, replaced
}

// lookup finds synonyms for word, retrying with a singular form when the word
// looks plural. The second result reports that the singular matched.
func lookup(t *Thesaurus, word string) ([]string, bool) {
	if synonyms := t.Synonyms(word); len(synonyms) > 0 {
		return synonyms, false
	}
	lower := strings.ToLower(word)
	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 3:
		if synonyms := t.Synonyms(lower[:len(lower)-3] + "y"); len(synonyms) > 0 {
			return synonyms, true
		}
	case strings.HasSuffix(lower, "es") && len(lower) > 3:
		if synonyms := t.Synonyms(lower[:len(lower)-2]); len(synonyms) > 0 {
			return synonyms, true
		}
		fallthrough
	case strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") && len(lower) > 2:
		if synonyms := t.Synonyms(lower[:len(lower)-1]); len(synonyms) > 0 {
			return synonyms, true
		}
	}
	return nil, false
}

// pluralize applies regular English plural endings to the last word of s.
func pluralize(s string) string {
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !isVowel(lower[len(lower)-2]):
		return s[:len(s)-1] + "ies"
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"), strings.HasSuffix(lower, "z"),
		strings.HasSuffix(lower, "ch"), strings.HasSuffix(lower, "sh"):
		return s + "es"
	default:
		return s + "s"
	}
}

func isVowel(b byte) bool {
	return strings.IndexByte("aeiou", b) >= 0
}

// matchCase gives replacement the leading capitalization of original. An
// original written entirely in capitals yields an all-capital replacement.
func matchCase(original, replacement string) string {
	first, _ := utf8.DecodeRuneInString(original)
	if !unicode.IsUpper(first) {
		return replacement
	}
	if utf8.RuneCountInString(original) > 1 && strings.ToUpper(original) == original {
		return strings.ToUpper(replacement)
	}
	r, size := utf8.DecodeRuneInString(replacement)
	return string(unicode.ToUpper(r)) + replacement[size:]
}

// splitPunct separates leading and trailing punctuation from the letters of word.
func splitPunct(word string) (lead, core, trail string) {
	start := strings.IndexFunc(word, isWordRune)
	if start < 0 {
		return word, "", ""
	}
	end := strings.LastIndexFunc(word, isWordRune)
	_, size := utf8.DecodeRuneInString(word[end:])
	return word[:start], word[start : end+size], word[end+size:]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
