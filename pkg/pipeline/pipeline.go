// Package pipeline runs a full generation: it builds (or reuses) a chart for
// a corpus, walks it, and passes the result through optional synonym
// substitution and rewriting.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/CTAG07/Drosera/pkg/markov"
	"github.com/CTAG07/Drosera/pkg/rewrite"
	"github.com/CTAG07/Drosera/pkg/substitute"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultStateSize is the chart order of DefaultRequest.
	DefaultStateSize = 2
	// DefaultCacheSize is the number of charts a Pipeline keeps by default.
	DefaultCacheSize = 32

	// MaxStateSize, MaxMinWords and MaxExtraWords bound the request fields of
	// the same name. Larger values are rejected by Request.Validate.
	MaxStateSize  = 16
	MaxMinWords   = 100_000
	MaxExtraWords = 100_000
)

// ErrRewrite marks a failure of the rewrite stage.
var ErrRewrite = errors.New("rewrite failed")

// Request describes a single run. Start from DefaultRequest; zero values are
// passed through to the generator as given.
type Request struct {
	StateSize     int
	MinWords      int
	MaxExtraWords int
	Casing        markov.CasingPolicy
	Temperature   float64
	TopK          int
	// Substitute enables synonym substitution when a substituter is configured.
	Substitute bool
	// Rewrite enables the rewriter when one is configured.
	Rewrite bool
}

// DefaultRequest returns a request with the generator defaults.
func DefaultRequest() Request {
	return Request{
		StateSize:     DefaultStateSize,
		MinWords:      markov.DefaultMinWords,
		MaxExtraWords: markov.DefaultMaxExtraWords,
		Casing:        markov.CasingSentence,
		Temperature:   1.0,
	}
}

// Validate rejects requests outside the supported limits. Errors match
// markov.ErrConfiguration.
func (r Request) Validate() error {
	if r.StateSize < 1 || r.StateSize > MaxStateSize {
		return fmt.Errorf("%w: state size must be between 1 and %d, got %d", markov.ErrConfiguration, MaxStateSize, r.StateSize)
	}
	if r.MinWords < r.StateSize || r.MinWords > MaxMinWords {
		return fmt.Errorf("%w: min words must be between the state size and %d, got %d", markov.ErrConfiguration, MaxMinWords, r.MinWords)
	}
	if r.MaxExtraWords < 0 || r.MaxExtraWords > MaxExtraWords {
		return fmt.Errorf("%w: max extra words must be between 0 and %d, got %d", markov.ErrConfiguration, MaxExtraWords, r.MaxExtraWords)
	}
	return nil
}

// Output is the result of a successful run. Every stage's text is kept.
type Output struct {
	RunID       string         `json:"run_id"`
	Raw         string         `json:"raw"`
	Substituted string         `json:"substituted,omitempty"`
	Final       string         `json:"final"`
	Result      *markov.Result `json:"-"`
	Replaced    int            `json:"replaced"`
	Rewritten   bool           `json:"rewritten"`
}

// Pipeline owns the generator and post-processing stages and keeps the most
// recently used charts it builds. It is safe for concurrent use.
type Pipeline struct {
	generator   *markov.Generator
	builder     *markov.ChartBuilder
	substituter *substitute.Substituter
	rewriter    rewrite.Rewriter
	logger      *slog.Logger

	cacheSize int
	charts    *lru.Cache[string, *markov.Chart]
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSubstituter enables synonym substitution for requests that ask for it.
func WithSubstituter(s *substitute.Substituter) Option {
	return func(p *Pipeline) { p.substituter = s }
}

// WithRewriter enables rewriting for requests that ask for it.
func WithRewriter(r rewrite.Rewriter) Option {
	return func(p *Pipeline) { p.rewriter = r }
}

// WithChartBuilder replaces the default whitespace chart builder.
func WithChartBuilder(b *markov.ChartBuilder) Option {
	return func(p *Pipeline) {
		if b != nil {
			p.builder = b
		}
	}
}

// WithCacheSize sets how many charts are kept. Values below 1 are ignored.
func WithCacheSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.cacheSize = n
		}
	}
}

// New creates a Pipeline around generator.
func New(generator *markov.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		generator: generator,
		builder:   markov.NewChartBuilder(nil),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.charts, _ = lru.New[string, *markov.Chart](p.cacheSize)
	return p
}

// WithGenerator returns a Pipeline that samples with generator and shares
// every other stage, and the chart cache, with p.
func (p *Pipeline) WithGenerator(generator *markov.Generator) *Pipeline {
	clone := *p
	clone.generator = generator
	return &clone
}

// SetLogger sets the logger for the Pipeline. By default, all logs are discarded.
func (p *Pipeline) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

func cacheKey(corpus string, stateSize int) string {
	sum := sha256.Sum256([]byte(corpus))
	return fmt.Sprintf("%s/%d", hex.EncodeToString(sum[:]), stateSize)
}

// Chart returns the chart for corpus at stateSize, building it on first use.
// Once the cache is full the least recently used chart is evicted.
func (p *Pipeline) Chart(ctx context.Context, corpus string, stateSize int) (*markov.Chart, error) {
	key := cacheKey(corpus, stateSize)
	if chart, ok := p.charts.Get(key); ok {
		return chart, nil
	}

	chart, err := p.builder.BuildString(corpus, stateSize)
	if err != nil {
		return nil, err
	}

	// A concurrent build of the same key may have won; keep its chart.
	if cached, ok, _ := p.charts.PeekOrAdd(key, chart); ok {
		return cached, nil
	}

	p.logger.DebugContext(ctx, "Chart cached",
		slog.Int("state_size", stateSize),
		slog.Int("states", chart.Len()),
		slog.Int("cached", p.charts.Len()),
	)
	return chart, nil
}

// Invalidate drops every cached chart.
func (p *Pipeline) Invalidate() {
	p.charts.Purge()
}

// CachedCharts returns the number of charts in the cache.
func (p *Pipeline) CachedCharts() int {
	return p.charts.Len()
}

// Run builds or reuses the chart for corpus, generates text and applies the
// requested post-processing. On any failure no text is returned.
func (p *Pipeline) Run(ctx context.Context, corpus string, req Request) (*Output, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	chart, err := p.Chart(ctx, corpus, req.StateSize)
	if err != nil {
		return nil, err
	}

	result, err := p.generator.Generate(ctx, chart,
		markov.WithMinWords(req.MinWords),
		markov.WithMaxExtraWords(req.MaxExtraWords),
		markov.WithCasing(req.Casing),
		markov.WithTemperature(req.Temperature),
		markov.WithTopK(req.TopK),
	)
	if err != nil {
		return nil, err
	}

	out := &Output{
		RunID:  uuid.NewString(),
		Raw:    result.Text(),
		Result: result,
	}
	out.Final = out.Raw

	if req.Substitute && p.substituter != nil {
		words, n := p.substituter.SubstituteWords(result.Words)
		out.Substituted = strings.Join(words, " ")
		out.Replaced = n
		out.Final = out.Substituted
	}

	if req.Rewrite && p.rewriter != nil {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		rewritten, err := p.rewriter.Rewrite(ctx, out.Final)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRewrite, err)
		}
		out.Final = rewritten
		out.Rewritten = true
	}

	p.logger.InfoContext(ctx, "Generation run complete",
		slog.String("run_id", out.RunID),
		slog.Int("words", len(result.Words)),
		slog.Int("fallbacks", result.Fallbacks),
		slog.Int("replaced", out.Replaced),
		slog.Bool("rewritten", out.Rewritten),
	)
	return out, nil
}
