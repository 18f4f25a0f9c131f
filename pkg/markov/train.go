package markov

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ChartBuilder turns a corpus into a Chart by sliding a window of state_size
// words across its tokens and counting what follows each window.
type ChartBuilder struct {
	tokenizer Tokenizer
	logger    *slog.Logger
}

// NewChartBuilder creates a ChartBuilder. A nil tokenizer selects the
// whitespace-splitting DefaultTokenizer.
func NewChartBuilder(tokenizer Tokenizer) *ChartBuilder {
	if tokenizer == nil {
		tokenizer = NewDefaultTokenizer()
	}
	return &ChartBuilder{
		tokenizer: tokenizer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the ChartBuilder. By default, all logs are discarded.
func (b *ChartBuilder) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// maxWindowPrealloc caps the window capacity reserved up front.
const maxWindowPrealloc = 64

// Build reads a corpus from r and returns its chart. It fails with
// ErrConfiguration if stateSize is below 1, and with an error matching both
// ErrEmptyChart and ErrConfiguration if the corpus holds fewer than
// stateSize+1 words.
func (b *ChartBuilder) Build(r io.Reader, stateSize int) (*Chart, error) {
	table, err := NewTransitionTable(stateSize)
	if err != nil {
		return nil, err
	}

	stream := b.tokenizer.NewStream(r)
	window := make([]string, 0, min(stateSize, maxWindowPrealloc))
	var words int
	for {
		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("tokenizer error: %w", err)
		}
		if !validWord(token.Text) {
			return nil, fmt.Errorf("%w: tokenizer produced invalid word %q", ErrConfiguration, token.Text)
		}
		words++

		if len(window) == stateSize {
			table.observe(newState(window), token.Text)
			window = append(window[:0], window[1:]...)
		}
		window = append(window, token.Text)
	}

	return b.finish(table, words)
}

// BuildString is a convenience wrapper around Build for an in-memory corpus.
func (b *ChartBuilder) BuildString(corpus string, stateSize int) (*Chart, error) {
	return b.Build(strings.NewReader(corpus), stateSize)
}

func (b *ChartBuilder) finish(table *TransitionTable, words int) (*Chart, error) {
	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: corpus has %d words, state size %d needs more: %w",
			ErrConfiguration, words, table.Order(), ErrEmptyChart)
	}

	chart, err := table.Build()
	if err != nil {
		return nil, err
	}

	b.logger.Debug("Chart built",
		slog.Int("state_size", table.Order()),
		slog.Int("words", words),
		slog.Int("states", chart.Len()),
		slog.Int("starters", len(chart.starters)),
		slog.Int("observations", table.Observations()),
	)
	return chart, nil
}

// BuildChart tokenizes corpus on whitespace and builds its chart.
func BuildChart(corpus string, stateSize int) (*Chart, error) {
	return NewChartBuilder(nil).BuildString(corpus, stateSize)
}

// BuildChartFromTokens builds a chart from an already tokenized corpus.
// Every token must be non-empty and free of whitespace.
func BuildChartFromTokens(tokens []string, stateSize int) (*Chart, error) {
	table, err := NewTransitionTable(stateSize)
	if err != nil {
		return nil, err
	}
	for i, tok := range tokens {
		if !validWord(tok) {
			return nil, fmt.Errorf("%w: token %d (%q) is empty or contains whitespace", ErrConfiguration, i, tok)
		}
	}
	for i := 0; i < len(tokens)-stateSize; i++ {
		table.observe(newState(tokens[i:i+stateSize]), tokens[i+stateSize])
	}
	return NewChartBuilder(nil).finish(table, len(tokens))
}
