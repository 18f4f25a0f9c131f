package markov

import (
	crand "crypto/rand"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
)

// Generator walks a Chart to produce sentence-terminated text. It holds no
// chart state of its own, so a single Generator may serve any number of
// charts and concurrent runs. Its random source is guarded by a mutex.
type Generator struct {
	rng    *rand.Rand
	logger *slog.Logger
}

// lockedSource serializes access to a rand.Source shared by concurrent runs.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

// NewGenerator creates a Generator drawing randomness from src. A nil src
// selects a ChaCha8 source seeded from crypto/rand. Pass a fixed-seed source
// (rand.NewPCG, rand.NewChaCha8) for reproducible walks.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		var seed [32]byte
		_, _ = crand.Read(seed[:])
		src = rand.NewChaCha8(seed)
	}
	return &Generator{
		rng:    rand.New(&lockedSource{src: src}),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Generator. By default, all logs are discarded.
// Providing a `log/slog.Logger` will enable debug logging of each run.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}
