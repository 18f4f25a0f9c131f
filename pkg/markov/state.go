package markov

import (
	"fmt"
	"strings"
)

// State is the conditioning context of the chain: an immutable, ordered
// window of consecutive words. States are comparable and used directly as
// chart keys. The zero State holds no words.
type State struct {
	key string // words joined by single spaces
	n   int
}

// NewState builds a State from words. Every word must be non-empty and free
// of whitespace.
func NewState(words ...string) (State, error) {
	if len(words) == 0 {
		return State{}, fmt.Errorf("%w: a state needs at least one word", ErrConfiguration)
	}
	for i, w := range words {
		if !validWord(w) {
			return State{}, fmt.Errorf("%w: state word %d (%q) is empty or contains whitespace", ErrConfiguration, i, w)
		}
	}
	return newState(words), nil
}

// newState skips validation; callers guarantee the words are valid.
func newState(words []string) State {
	return State{key: strings.Join(words, " "), n: len(words)}
}

// Len returns the number of words in the state.
func (s State) Len() int {
	return s.n
}

// IsZero reports whether the state holds no words.
func (s State) IsZero() bool {
	return s.n == 0
}

// Words returns a fresh copy of the state's words.
func (s State) Words() []string {
	if s.n == 0 {
		return nil
	}
	return strings.Split(s.key, " ")
}

// First returns the state's first word.
func (s State) First() string {
	first, _, _ := strings.Cut(s.key, " ")
	return first
}

// Last returns the state's last word.
func (s State) Last() string {
	return s.key[strings.LastIndexByte(s.key, ' ')+1:]
}

// Shift drops the first word and appends next, keeping the length fixed.
func (s State) Shift(next string) State {
	if s.n <= 1 {
		return State{key: next, n: 1}
	}
	_, rest, _ := strings.Cut(s.key, " ")
	return State{key: rest + " " + next, n: s.n}
}

// IsStarter reports whether the state may open generated output.
func (s State) IsStarter() bool {
	return s.n > 0 && IsStarterWord(s.First())
}

// String returns the words separated by single spaces.
func (s State) String() string {
	return s.key
}
