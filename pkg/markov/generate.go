package markov

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMinWords is the minimum output length used when WithMinWords is not given.
	DefaultMinWords = 50
	// DefaultMaxExtraWords is the terminal-seeking ceiling used when WithMaxExtraWords is not given.
	DefaultMaxExtraWords = 200

	// maxOutputPrealloc caps the output capacity reserved before a run.
	maxOutputPrealloc = 1024
)

// CasingPolicy decides how a sampled word is cased before it is appended.
type CasingPolicy int

const (
	// CasingSentence capitalizes a word that follows a terminal word and
	// lower-cases every other sampled word, proper nouns included.
	CasingSentence CasingPolicy = iota
	// CasingCapitalizeOnly capitalizes a word that follows a terminal word
	// and leaves every other sampled word as it was observed.
	CasingCapitalizeOnly
	// CasingPreserve appends sampled words exactly as observed.
	CasingPreserve
)

// String returns the policy's configuration name.
func (c CasingPolicy) String() string {
	switch c {
	case CasingSentence:
		return "sentence"
	case CasingCapitalizeOnly:
		return "capitalize"
	case CasingPreserve:
		return "preserve"
	default:
		return fmt.Sprintf("CasingPolicy(%d)", int(c))
	}
}

// ParseCasingPolicy maps a configuration name back to its CasingPolicy.
func ParseCasingPolicy(name string) (CasingPolicy, error) {
	switch strings.ToLower(name) {
	case "sentence", "":
		return CasingSentence, nil
	case "capitalize":
		return CasingCapitalizeOnly, nil
	case "preserve":
		return CasingPreserve, nil
	default:
		return 0, fmt.Errorf("%w: unknown casing policy %q", ErrConfiguration, name)
	}
}

func (c CasingPolicy) apply(prev, word string) string {
	switch c {
	case CasingPreserve:
		return word
	case CasingCapitalizeOnly:
		if IsTerminal(prev) {
			return capitalize(word)
		}
		return word
	default:
		if IsTerminal(prev) {
			return capitalize(strings.ToLower(word))
		}
		return strings.ToLower(word)
	}
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}

// generateOptions Is used by Generate to configure default options.
type generateOptions struct {
	minWords      int
	maxExtraWords int
	casing        CasingPolicy
	temperature   float64
	topK          int
}

func defaultGenerateOptions() *generateOptions {
	return &generateOptions{
		minWords:      DefaultMinWords,
		maxExtraWords: DefaultMaxExtraWords,
		casing:        CasingSentence,
		temperature:   1.0,
		topK:          0,
	}
}

func (o *generateOptions) validate(order int) error {
	if o.minWords < order {
		return fmt.Errorf("%w: min words (%d) must be at least the state size (%d)", ErrConfiguration, o.minWords, order)
	}
	if o.maxExtraWords < 0 {
		return fmt.Errorf("%w: max extra words must not be negative, got %d", ErrConfiguration, o.maxExtraWords)
	}
	if o.topK < 0 {
		return fmt.Errorf("%w: top-k must not be negative, got %d", ErrConfiguration, o.topK)
	}
	switch o.casing {
	case CasingSentence, CasingCapitalizeOnly, CasingPreserve:
	default:
		return fmt.Errorf("%w: unknown casing policy %d", ErrConfiguration, int(o.casing))
	}
	return nil
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument to Generate.
type GenerateOption func(*generateOptions)

// WithMinWords sets the minimum number of words to generate. Output may run
// longer while the generator looks for a word that ends a sentence.
func WithMinWords(n int) GenerateOption {
	return func(o *generateOptions) { o.minWords = n }
}

// WithMaxExtraWords caps how many words may be sampled after the minimum is
// reached while looking for a terminal word. Exceeding it fails the run with
// ErrNoTerminalFound.
func WithMaxExtraWords(n int) GenerateOption {
	return func(o *generateOptions) { o.maxExtraWords = n }
}

// WithCasing sets the casing policy applied to each sampled word.
func WithCasing(c CasingPolicy) GenerateOption {
	return func(o *generateOptions) { o.casing = c }
}

// WithTemperature adjusts the randomness of the word selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 increase randomness (making less frequent words more likely).
// Values < 1.0 decrease randomness (making more frequent words even more likely).
// A value of 0 or less results in deterministic selection (always choosing the most frequent word).
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts the selection pool to the top `k` most frequent words
// at each step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// Result is the output of a successful generation run.
type Result struct {
	// Words is the generated sequence. Its last word is always terminal.
	Words []string
	// Starter is the state the run opened with.
	Starter State
	// Fallbacks counts steps whose state was missing from the chart.
	Fallbacks int
	// ExtraWords counts words sampled after the minimum length was reached.
	ExtraWords int
}

// Text joins the words with single spaces.
func (r *Result) Text() string {
	return strings.Join(r.Words, " ")
}

// phase is a step of the generation state machine.
type phase int

const (
	phaseSelectStarter phase = iota
	phaseExtend
	phaseSeekTerminal
	phaseTerminate
)

// generation is the mutable state owned by a single run.
type generation struct {
	output     []string
	window     State // the last state_size words as sampled, before casing
	starter    State
	fallbacks  int
	extraWords int
}

// Generate walks chart and returns a sentence-terminated sequence of at least
// the configured minimum number of words. The run opens on a uniformly chosen
// starter state, samples each next word from the current state's
// distribution, falls back to a uniformly chosen chart state when the current
// one is missing, and after the minimum length keeps sampling until a
// terminal word is appended. ctx is checked once per sampled word; on any
// failure no partial output is returned.
func (g *Generator) Generate(ctx context.Context, chart *Chart, opts ...GenerateOption) (*Result, error) {
	if chart == nil || chart.Len() == 0 {
		return nil, ErrEmptyChart
	}

	options := defaultGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}
	if err := options.validate(chart.Order()); err != nil {
		return nil, err
	}

	run := &generation{output: make([]string, 0, min(options.minWords, maxOutputPrealloc)+1)}
	p := phaseSelectStarter

	for p != phaseTerminate {
		switch p {
		case phaseSelectStarter:
			starter, ok := chart.randomStarter(g.rng)
			if !ok {
				return nil, fmt.Errorf("%w: none of %d states opens with a capitalized word", ErrNoStarterAvailable, chart.Len())
			}
			run.starter = starter
			run.window = starter
			run.output = append(run.output, starter.Words()...)
			p = phaseExtend

		case phaseExtend:
			if len(run.output) >= options.minWords {
				p = phaseSeekTerminal
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			g.step(ctx, chart, run, options)

		case phaseSeekTerminal:
			if IsTerminal(run.output[len(run.output)-1]) {
				p = phaseTerminate
				continue
			}
			if run.extraWords >= options.maxExtraWords {
				g.logger.DebugContext(ctx, "Generation gave up seeking a terminal word",
					slog.Int("generated_length", len(run.output)),
					slog.Int("max_extra_words", options.maxExtraWords),
				)
				return nil, fmt.Errorf("%w after %d extra words", ErrNoTerminalFound, run.extraWords)
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			g.step(ctx, chart, run, options)
			run.extraWords++
		}
	}

	g.logger.DebugContext(ctx, "Generation finished",
		slog.String("starter", run.starter.String()),
		slog.Int("generated_length", len(run.output)),
		slog.Int("extra_words", run.extraWords),
		slog.Int("fallbacks", run.fallbacks),
	)

	return &Result{
		Words:      run.output,
		Starter:    run.starter,
		Fallbacks:  run.fallbacks,
		ExtraWords: run.extraWords,
	}, nil
}

// step samples one word, appends it with casing applied and slides the window.
func (g *Generator) step(ctx context.Context, chart *Chart, run *generation, options *generateOptions) {
	dist, ok := chart.Lookup(run.window)
	if !ok {
		fallback := chart.randomKey(g.rng)
		dist = chart.states[fallback]
		run.fallbacks++
		g.logger.DebugContext(ctx, "State missing from chart, falling back to a random state",
			slog.String("missing_state", run.window.String()),
			slog.String("fallback_state", fallback.String()),
		)
	}

	next := g.chooseNextWord(dist, options)
	prev := run.output[len(run.output)-1]
	run.output = append(run.output, options.casing.apply(prev, next))
	run.window = run.window.Shift(next)
}

// chooseNextWord abstracts the word selection logic from the generation loop.
// The distribution is never modified.
func (g *Generator) chooseNextWord(dist *Distribution, options *generateOptions) string {
	choices := dist.outcomes
	totalFreq := dist.total

	// topK filtering
	if options.topK > 0 && options.topK < len(choices) {
		ranked := make([]Outcome, len(choices))
		copy(ranked, choices)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Count > ranked[j].Count
		})
		choices = ranked[:options.topK]
		totalFreq = 0
		for _, choice := range choices {
			totalFreq += choice.Count
		}
	}

	// temperature selection
	if options.temperature <= 0 { // Deterministic
		best := choices[0]
		for _, choice := range choices[1:] {
			if choice.Count > best.Count {
				best = choice
			}
		}
		return best.Word
	}

	if options.temperature == 1.0 { // Standard weighted random
		randChoice := g.rng.IntN(totalFreq)
		for _, choice := range choices {
			randChoice -= choice.Count
			if randChoice < 0 {
				return choice.Word
			}
		}
		return choices[len(choices)-1].Word
	}

	// Temperature-based sampling
	logProbabilities := make([]float64, len(choices))
	epsilon := math.Inf(-1)
	for i, choice := range choices {
		lp := math.Log(float64(choice.Count)) / options.temperature
		logProbabilities[i] = lp
		if lp > epsilon {
			epsilon = lp
		}
	}
	var totalWeight float64
	weights := make([]float64, len(choices))
	for i, lp := range logProbabilities {
		w := math.Exp(lp - epsilon)
		weights[i] = w
		totalWeight += w
	}
	randChoice := g.rng.Float64() * totalWeight
	for i, choice := range choices {
		randChoice -= weights[i]
		if randChoice < 0 {
			return choice.Word
		}
	}
	return choices[len(choices)-1].Word
}
