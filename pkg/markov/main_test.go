package markov

import (
	"go/build"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const catCorpus = "The cat sat. The dog ran. The cat slept."

// newTestGenerator returns a Generator with a fixed seed so failures can be replayed.
func newTestGenerator(t testing.TB) *Generator {
	t.Helper()
	return NewGenerator(rand.NewPCG(1, 2))
}

// mustBuildChart builds a chart or fails the test.
func mustBuildChart(t testing.TB, corpus string, stateSize int) *Chart {
	t.Helper()
	chart, err := BuildChart(corpus, stateSize)
	if err != nil {
		t.Fatalf("BuildChart(%q, %d) error = %v", corpus, stateSize, err)
	}
	return chart
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "This is a fallback corpus for benchmarking. It is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
