package markov

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestGenerate(t *testing.T) {
	chart := mustBuildChart(t, catCorpus, 1)

	// With temperature 0 the walk always takes the most frequent word, ties
	// broken by word order, and "The" is the only starter.
	result, err := newTestGenerator(t).Generate(context.Background(), chart, WithMinWords(4), WithTemperature(0))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	want := "The cat sat. The cat sat."
	if got := result.Text(); got != want {
		t.Errorf("Generate() got = %q, want %q", got, want)
	}
	if result.Starter.String() != "The" {
		t.Errorf("Starter = %q, want %q", result.Starter, "The")
	}
	if result.ExtraWords != 2 || result.Fallbacks != 0 {
		t.Errorf("ExtraWords=%d Fallbacks=%d, want 2 and 0", result.ExtraWords, result.Fallbacks)
	}
}

func TestGenerateProperties(t *testing.T) {
	corpora := []struct {
		corpus    string
		stateSize int
	}{
		{catCorpus, 1},
		{catCorpus, 2},
		{"The quick brown fox jumps. A lazy dog sleeps! Why does the fox jump? The dog never asks.", 1},
		{"The quick brown fox jumps. A lazy dog sleeps! Why does the fox jump? The dog never asks.", 2},
	}

	for _, c := range corpora {
		chart := mustBuildChart(t, c.corpus, c.stateSize)
		vocab := make(map[string]bool)
		for _, w := range strings.Fields(c.corpus) {
			vocab[strings.ToLower(w)] = true
		}

		for seed := uint64(0); seed < 200; seed++ {
			g := NewGenerator(rand.NewPCG(seed, seed^0x9e3779b9))
			minWords := c.stateSize + int(seed%7)
			result, err := g.Generate(context.Background(), chart, WithMinWords(minWords))
			if err != nil {
				t.Fatalf("order %d seed %d: Generate failed: %v", c.stateSize, seed, err)
			}

			words := result.Words
			if len(words) < minWords {
				t.Fatalf("seed %d: got %d words, want at least %d", seed, len(words), minWords)
			}
			if !IsTerminal(words[len(words)-1]) {
				t.Fatalf("seed %d: output %q does not end a sentence", seed, result.Text())
			}
			if !result.Starter.IsStarter() {
				t.Fatalf("seed %d: starter %q is not a starter state", seed, result.Starter)
			}
			if diff := cmp.Diff(result.Starter.Words(), words[:c.stateSize]); diff != "" {
				t.Fatalf("seed %d: output does not open with its starter (-want +got):\n%s", seed, diff)
			}
			if result.ExtraWords > DefaultMaxExtraWords {
				t.Fatalf("seed %d: %d extra words exceeds the ceiling", seed, result.ExtraWords)
			}
			if len(words) != max(minWords, c.stateSize)+result.ExtraWords {
				t.Fatalf("seed %d: %d words does not match minimum %d plus %d extra", seed, len(words), minWords, result.ExtraWords)
			}
			for _, w := range words {
				if !vocab[strings.ToLower(w)] {
					t.Fatalf("seed %d: word %q is not in the corpus", seed, w)
				}
			}
		}
	}
}

func TestGenerateIsReproducible(t *testing.T) {
	chart := mustBuildChart(t, createBenchmarkCorpus(), 2)

	a, err := NewGenerator(rand.NewPCG(7, 7)).Generate(context.Background(), chart, WithMinWords(30))
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewGenerator(rand.NewPCG(7, 7)).Generate(context.Background(), chart, WithMinWords(30))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a.Words, b.Words); diff != "" {
		t.Errorf("same seed produced different output (-first +second):\n%s", diff)
	}
}

func TestGenerateFallback(t *testing.T) {
	table, _ := NewTransitionTable(1)
	start, _ := NewState("Start")
	if err := table.Observe(start, "end."); err != nil {
		t.Fatal(err)
	}
	chart, err := table.Build()
	if err != nil {
		t.Fatal(err)
	}

	for seed := uint64(0); seed < 10; seed++ {
		result, err := NewGenerator(rand.NewPCG(seed, 1)).Generate(context.Background(), chart, WithMinWords(4))
		if err != nil {
			t.Fatalf("seed %d: Generate failed: %v", seed, err)
		}
		if got, want := result.Text(), "Start end. End. End."; got != want {
			t.Errorf("seed %d: got %q, want %q", seed, got, want)
		}
		if result.Fallbacks != 2 {
			t.Errorf("seed %d: Fallbacks = %d, want 2", seed, result.Fallbacks)
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	catChart := mustBuildChart(t, catCorpus, 2)

	testCases := []struct {
		name    string
		chart   *Chart
		opts    []GenerateOption
		wantErr error
	}{
		{
			name:    "Nil chart",
			chart:   nil,
			wantErr: ErrEmptyChart,
		},
		{
			name:    "No starter",
			chart:   mustBuildChart(t, "all lower case words here.", 1),
			opts:    []GenerateOption{WithMinWords(2)},
			wantErr: ErrNoStarterAvailable,
		},
		{
			name:    "Only terminal-bearing capitalized states",
			chart:   mustBuildChart(t, "Hello. world again", 1),
			opts:    []GenerateOption{WithMinWords(2)},
			wantErr: ErrNoStarterAvailable,
		},
		{
			name:    "No terminal reachable",
			chart:   mustBuildChart(t, "Alpha beta gamma Alpha beta delta", 1),
			opts:    []GenerateOption{WithMinWords(4), WithMaxExtraWords(10)},
			wantErr: ErrNoTerminalFound,
		},
		{
			name:    "Min words below state size",
			chart:   catChart,
			opts:    []GenerateOption{WithMinWords(1)},
			wantErr: ErrConfiguration,
		},
		{
			name:    "Negative max extra words",
			chart:   catChart,
			opts:    []GenerateOption{WithMaxExtraWords(-1)},
			wantErr: ErrConfiguration,
		},
		{
			name:    "Negative top-k",
			chart:   catChart,
			opts:    []GenerateOption{WithTopK(-1)},
			wantErr: ErrConfiguration,
		},
		{
			name:    "Unknown casing",
			chart:   catChart,
			opts:    []GenerateOption{WithCasing(CasingPolicy(99))},
			wantErr: ErrConfiguration,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := newTestGenerator(t).Generate(context.Background(), tc.chart, tc.opts...)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Generate() error = %v, want %v", err, tc.wantErr)
			}
			if result != nil {
				t.Errorf("expected no partial result, got %q", result.Text())
			}
		})
	}
}

func TestGenerateCanceled(t *testing.T) {
	chart := mustBuildChart(t, catCorpus, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestGenerator(t).Generate(ctx, chart, WithMinWords(10))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Generate() error = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Errorf("expected no partial result, got %q", result.Text())
	}
}

func TestGenerateHugeMinWords(t *testing.T) {
	chart := mustBuildChart(t, catCorpus, 1)
	gen := newTestGenerator(t)

	for _, minWords := range []int{1 << 32, math.MaxInt} {
		t.Run(fmt.Sprintf("canceled/%d", minWords), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			result, err := gen.Generate(ctx, chart, WithMinWords(minWords))
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Generate() error = %v, want context.Canceled", err)
			}
			if result != nil {
				t.Errorf("expected no partial result, got %d words", len(result.Words))
			}
		})
	}

	t.Run("deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		result, err := gen.Generate(ctx, chart, WithMinWords(math.MaxInt))
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Generate() error = %v, want context.DeadlineExceeded", err)
		}
		if result != nil {
			t.Errorf("expected no partial result, got %d words", len(result.Words))
		}
	})
}

func TestGenerateCasing(t *testing.T) {
	chart := mustBuildChart(t, "Alice met Bob today. then Alice met Bob today.", 2)

	testCases := []struct {
		casing CasingPolicy
		want   string
	}{
		{CasingSentence, "Alice met bob today. Then alice met bob today."},
		{CasingCapitalizeOnly, "Alice met Bob today. Then Alice met Bob today."},
		{CasingPreserve, "Alice met Bob today. then Alice met Bob today."},
	}

	for _, tc := range testCases {
		t.Run(tc.casing.String(), func(t *testing.T) {
			result, err := newTestGenerator(t).Generate(context.Background(), chart,
				WithMinWords(5), WithTemperature(0), WithCasing(tc.casing))
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if got := result.Text(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseCasingPolicy(t *testing.T) {
	for _, c := range []CasingPolicy{CasingSentence, CasingCapitalizeOnly, CasingPreserve} {
		parsed, err := ParseCasingPolicy(c.String())
		if err != nil || parsed != c {
			t.Errorf("ParseCasingPolicy(%q) = %v, %v", c.String(), parsed, err)
		}
	}
	if _, err := ParseCasingPolicy("shouting"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for an unknown policy, got %v", err)
	}
}

func TestGenerateTopKLeavesChartUntouched(t *testing.T) {
	chart := mustBuildChart(t, catCorpus, 1)
	the, _ := NewState("The")
	dist, _ := chart.Lookup(the)
	before := dist.Outcomes()

	result, err := newTestGenerator(t).Generate(context.Background(), chart, WithMinWords(4), WithTopK(1))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got, want := result.Text(), "The cat sat. The cat sat."; got != want {
		t.Errorf("top-1 output = %q, want %q", got, want)
	}
	if diff := cmp.Diff(before, dist.Outcomes()); diff != "" {
		t.Errorf("top-k sampling reordered the chart (-before +after):\n%s", diff)
	}
}

func TestGenerateConcurrent(t *testing.T) {
	chart := mustBuildChart(t, createBenchmarkCorpus(), 2)
	g := newTestGenerator(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				result, err := g.Generate(context.Background(), chart, WithMinWords(20), WithTemperature(1.5))
				if err != nil {
					errs <- err
					return
				}
				if !IsTerminal(result.Words[len(result.Words)-1]) {
					errs <- fmt.Errorf("output %q does not end a sentence", result.Text())
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func BenchmarkGenerate(b *testing.B) {
	chart, err := BuildChart(createBenchmarkCorpus(), 2)
	if err != nil {
		b.Fatalf("BuildChart() failed: %v", err)
	}
	g := NewGenerator(rand.NewPCG(1, 2))

	for _, minWords := range []int{10, 50, 200} {
		b.Run(fmt.Sprintf("MinWords%d", minWords), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := g.Generate(context.Background(), chart, WithMinWords(minWords)); err != nil {
					b.Fatalf("Generate() failed: %v", err)
				}
			}
		})
	}
}
