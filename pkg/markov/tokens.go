package markov

import (
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// terminalChars holds the characters that close a sentence.
const terminalChars = ".!?"

// Token represents a single tokenized word. Terminal is set when the word
// ends in sentence-terminal punctuation.
type Token struct {
	Text     string
	Terminal bool
}

// Tokenizer is an interface that defines the contract for splitting a corpus
// into words. This allows chart construction to be independent of the
// specific tokenization strategy.
type Tokenizer interface {
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of data, returning one token at a time.
type StreamTokenizer interface {
	// Next returns the next token from the stream. It returns io.EOF as the
	// error when the stream is fully consumed.
	Next() (*Token, error)
}

// Tokenize drains a stream built by t over corpus and returns the words in order.
func Tokenize(t Tokenizer, corpus string) ([]string, error) {
	stream := t.NewStream(strings.NewReader(corpus))
	var words []string
	for {
		token, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return words, nil
		}
		if err != nil {
			return nil, err
		}
		words = append(words, token.Text)
	}
}

// IsTerminal reports whether word ends in '.', '!' or '?'.
func IsTerminal(word string) bool {
	return word != "" && strings.IndexByte(terminalChars, word[len(word)-1]) >= 0
}

// IsStarterWord reports whether word may open generated output: it begins
// with an uppercase letter and contains no sentence-terminal character.
func IsStarterWord(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return false
	}
	return !strings.ContainsAny(word, terminalChars)
}

// validWord reports whether word can be stored in a State or Distribution.
func validWord(word string) bool {
	return word != "" && strings.IndexFunc(word, unicode.IsSpace) < 0
}
