package markov

import (
	"bufio"
	"io"
	"regexp"
)

// maxLineSize bounds a single scanned line when a split regex is configured.
const maxLineSize = 1 << 20

// DefaultTokenizer is a default implementation of the Tokenizer interface.
// By default it splits text on runs of whitespace, keeping punctuation
// attached to the word it follows, and flags words ending in '.', '!' or '?'
// as terminal. Its behavior can be customized with functional options.
type DefaultTokenizer struct {
	splitRegex    *regexp.Regexp
	terminalRegex *regexp.Regexp
}

// Option Is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithSplitRegex sets a regex used to find words in each input line instead
// of splitting on whitespace. Matches must not contain whitespace.
func WithSplitRegex(splitRegex string) Option {
	return func(t *DefaultTokenizer) {
		t.splitRegex = regexp.MustCompile(splitRegex)
	}
}

// WithTerminalRegex sets the regex string to use when deciding whether a token is terminal or not.
// Default: `[.!?]$`
func WithTerminalRegex(terminalRegex string) Option {
	return func(t *DefaultTokenizer) {
		t.terminalRegex = regexp.MustCompile(terminalRegex)
	}
}

// NewDefaultTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{
		terminalRegex: regexp.MustCompile(`[.!?]$`),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// NewStream Returns the stream processor.
func (t *DefaultTokenizer) NewStream(r io.Reader) StreamTokenizer {
	scanner := bufio.NewScanner(r)
	if t.splitRegex == nil {
		scanner.Split(bufio.ScanWords)
	} else {
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	}
	return &DefaultStreamTokenizer{
		scanner:       scanner,
		splitRegex:    t.splitRegex,
		terminalRegex: t.terminalRegex,
	}
}

// DefaultStreamTokenizer is the default implementation of the StreamTokenizer interface.
// It uses a bufio.Scanner and, optionally, a regular expression to tokenize a stream.
type DefaultStreamTokenizer struct {
	scanner       *bufio.Scanner
	buffer        []string
	splitRegex    *regexp.Regexp
	terminalRegex *regexp.Regexp
}

// Next returns the next token from the stream. It returns a Token and a nil error on
// success. When the stream is exhausted, it returns a nil Token and io.EOF.
// Any other error indicates a problem reading from the underlying stream.
func (s *DefaultStreamTokenizer) Next() (*Token, error) {
	for len(s.buffer) == 0 {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		if s.splitRegex == nil {
			s.buffer = append(s.buffer, s.scanner.Text())
		} else {
			for _, word := range s.splitRegex.FindAllString(s.scanner.Text(), -1) {
				if validWord(word) {
					s.buffer = append(s.buffer, word)
				}
			}
		}
	}

	word := s.buffer[0]
	s.buffer = s.buffer[1:]

	return &Token{Text: word, Terminal: s.terminalRegex.MatchString(word)}, nil
}
