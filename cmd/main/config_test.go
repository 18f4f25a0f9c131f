package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/CTAG07/Drosera/pkg/markov"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", newFlagSet(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drosera.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
generation:
  state_size: 3
  min_words: 20
  casing: preserve
substitute:
  rate: 0.25
`), 0o644))

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := LoadConfig(path, newFlagSet(t))
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, 3, cfg.Generation.StateSize)
		assert.Equal(t, 20, cfg.Generation.MinWords)
		assert.Equal(t, "preserve", cfg.Generation.Casing)
		assert.Equal(t, 0.25, cfg.Substitute.Rate)
		assert.Equal(t, DefaultConfig().Scrape, cfg.Scrape)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("DROSERA_GENERATION_MIN_WORDS", "40")
		cfg, err := LoadConfig(path, newFlagSet(t))
		require.NoError(t, err)
		assert.Equal(t, 40, cfg.Generation.MinWords)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("DROSERA_GENERATION_MIN_WORDS", "40")
		cfg, err := LoadConfig(path, newFlagSet(t, "--min-words=60", "--casing=capitalize"))
		require.NoError(t, err)
		assert.Equal(t, 60, cfg.Generation.MinWords)
		assert.Equal(t, "capitalize", cfg.Generation.Casing)
	})
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "nope.yaml"), nil)
		assert.Error(t, err)
	})

	tests := []struct {
		name string
		args []string
	}{
		{"state size zero", []string{"--state-size=0"}},
		{"min words below state size", []string{"--state-size=4", "--min-words=3"}},
		{"negative max extra words", []string{"--max-extra-words=-1"}},
		{"state size above limit", []string{"--state-size=1125899906842624", "--min-words=1125899906842624"}},
		{"min words above limit", []string{"--min-words=9223372036854775807"}},
		{"max extra words above limit", []string{"--max-extra-words=4294967296"}},
		{"empty chart cache", []string{"--chart-cache=0"}},
		{"unknown casing", []string{"--casing=shout"}},
		{"rate above one", []string{"--substitute-rate=1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig("", newFlagSet(t, tt.args...))
			assert.ErrorIs(t, err, markov.ErrConfiguration)
		})
	}

	t.Run("unknown log level", func(t *testing.T) {
		_, err := LoadConfig("", newFlagSet(t, "--log-level=loud"))
		assert.Error(t, err)
	})
}

func TestWriteConfigFile(t *testing.T) {
	dir := t.TempDir()
	want := DefaultConfig()
	want.Generation.MinWords = 75
	want.Server.TrustedProxies = []string{"10.0.0.0/8"}

	for _, name := range []string{"drosera.yaml", "drosera.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, WriteConfigFile(path, want, false))

			got, err := LoadConfig(path, nil)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			assert.Error(t, WriteConfigFile(path, want, false), "existing file must not be replaced")
			assert.NoError(t, WriteConfigFile(path, want, true))
		})
	}

	t.Run("unsupported extension", func(t *testing.T) {
		assert.Error(t, WriteConfigFile(filepath.Join(dir, "drosera.ini"), want, false))
	})
}
