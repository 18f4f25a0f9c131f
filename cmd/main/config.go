package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CTAG07/Drosera/pkg/markov"
	"github.com/CTAG07/Drosera/pkg/pipeline"
	"github.com/CTAG07/Drosera/pkg/rewrite"
	"github.com/CTAG07/Drosera/pkg/scrape"
	"github.com/CTAG07/Drosera/pkg/substitute"
	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the settings for the HTTP server and storage.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" json:"addr" yaml:"addr"`
	LogLevel       string   `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	LogFormat      string   `mapstructure:"log_format" json:"log_format" yaml:"log_format"`
	TrustedProxies []string `mapstructure:"trusted_proxies" json:"trusted_proxies" yaml:"trusted_proxies"`
	DataDir        string   `mapstructure:"data_dir" json:"data_dir" yaml:"data_dir"`
	DatabasePath   string   `mapstructure:"database_path" json:"database_path" yaml:"database_path"`
}

// GenerationConfig holds the defaults for a generation run.
type GenerationConfig struct {
	StateSize     int     `mapstructure:"state_size" json:"state_size" yaml:"state_size"`
	MinWords      int     `mapstructure:"min_words" json:"min_words" yaml:"min_words"`
	MaxExtraWords int     `mapstructure:"max_extra_words" json:"max_extra_words" yaml:"max_extra_words"`
	Casing        string  `mapstructure:"casing" json:"casing" yaml:"casing"`
	Temperature   float64 `mapstructure:"temperature" json:"temperature" yaml:"temperature"`
	TopK          int     `mapstructure:"top_k" json:"top_k" yaml:"top_k"`
	ChartCache    int     `mapstructure:"chart_cache" json:"chart_cache" yaml:"chart_cache"`
}

// ScrapeConfig holds the settings for fetching corpus text from the web.
type ScrapeConfig struct {
	MaxChars    int    `mapstructure:"max_chars" json:"max_chars" yaml:"max_chars"`
	Concurrency int    `mapstructure:"concurrency" json:"concurrency" yaml:"concurrency"`
	TimeoutSec  int    `mapstructure:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
	UserAgent   string `mapstructure:"user_agent" json:"user_agent" yaml:"user_agent"`
}

// SubstituteConfig holds the settings for synonym substitution.
type SubstituteConfig struct {
	ThesaurusPath string  `mapstructure:"thesaurus_path" json:"thesaurus_path" yaml:"thesaurus_path"`
	Rate          float64 `mapstructure:"rate" json:"rate" yaml:"rate"`
	Watch         bool    `mapstructure:"watch" json:"watch" yaml:"watch"`
}

// RewriteConfig holds the settings for the Gemini rewrite pass. The API key
// itself is never stored; APIKeyEnv names the variable that holds it.
type RewriteConfig struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Model     string `mapstructure:"model" json:"model" yaml:"model"`
	APIKeyEnv string `mapstructure:"api_key_env" json:"api_key_env" yaml:"api_key_env"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" json:"server" yaml:"server"`
	Generation GenerationConfig `mapstructure:"generation" json:"generation" yaml:"generation"`
	Scrape     ScrapeConfig     `mapstructure:"scrape" json:"scrape" yaml:"scrape"`
	Substitute SubstituteConfig `mapstructure:"substitute" json:"substitute" yaml:"substitute"`
	Rewrite    RewriteConfig    `mapstructure:"rewrite" json:"rewrite" yaml:"rewrite"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":7280",
			LogLevel:       "info",
			LogFormat:      "text",
			TrustedProxies: []string{},
			DataDir:        "./data",
			DatabasePath:   "./data/drosera.db",
		},
		Generation: GenerationConfig{
			StateSize:     pipeline.DefaultStateSize,
			MinWords:      markov.DefaultMinWords,
			MaxExtraWords: markov.DefaultMaxExtraWords,
			Casing:        markov.CasingSentence.String(),
			Temperature:   1.0,
			TopK:          0,
			ChartCache:    pipeline.DefaultCacheSize,
		},
		Scrape: ScrapeConfig{
			MaxChars:    scrape.DefaultMaxChars,
			Concurrency: scrape.DefaultConcurrency,
			TimeoutSec:  int(scrape.DefaultTimeout / time.Second),
			UserAgent:   scrape.DefaultUserAgent,
		},
		Substitute: SubstituteConfig{
			ThesaurusPath: "",
			Rate:          substitute.DefaultRate,
			Watch:         false,
		},
		Rewrite: RewriteConfig{
			Enabled:   false,
			Model:     rewrite.DefaultModel,
			APIKeyEnv: "GEMINI_API_KEY",
		},
	}
}

// flagKeys maps each configuration flag to its viper key.
var flagKeys = map[string]string{
	"server-addr":         "server.addr",
	"log-level":           "server.log_level",
	"log-format":          "server.log_format",
	"trusted-proxies":     "server.trusted_proxies",
	"data-dir":            "server.data_dir",
	"database":            "server.database_path",
	"state-size":          "generation.state_size",
	"min-words":           "generation.min_words",
	"max-extra-words":     "generation.max_extra_words",
	"casing":              "generation.casing",
	"temperature":         "generation.temperature",
	"top-k":               "generation.top_k",
	"chart-cache":         "generation.chart_cache",
	"scrape-max-chars":    "scrape.max_chars",
	"scrape-concurrency":  "scrape.concurrency",
	"scrape-timeout":      "scrape.timeout_sec",
	"scrape-user-agent":   "scrape.user_agent",
	"thesaurus":           "substitute.thesaurus_path",
	"substitute-rate":     "substitute.rate",
	"substitute-watch":    "substitute.watch",
	"rewrite":             "rewrite.enabled",
	"rewrite-model":       "rewrite.model",
	"rewrite-api-key-env": "rewrite.api_key_env",
}

// RegisterFlags adds a flag for every configuration key.
func RegisterFlags(fs *pflag.FlagSet, d Config) {
	fs.String("server-addr", d.Server.Addr, "HTTP listen address")
	fs.String("log-level", d.Server.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("log-format", d.Server.LogFormat, "Log format (text|json)")
	fs.StringSlice("trusted-proxies", d.Server.TrustedProxies, "Proxies whose forwarding headers are trusted (IPs or CIDRs)")
	fs.String("data-dir", d.Server.DataDir, "Directory for databases and exports")
	fs.String("database", d.Server.DatabasePath, "SQLite database path; empty means drosera.db under the data dir")
	fs.Int("state-size", d.Generation.StateSize, "Number of words per chart state")
	fs.Int("min-words", d.Generation.MinWords, "Minimum number of generated words")
	fs.Int("max-extra-words", d.Generation.MaxExtraWords, "Words allowed past the minimum while seeking a sentence end")
	fs.String("casing", d.Generation.Casing, "Casing policy (sentence|capitalize|preserve)")
	fs.Float64("temperature", d.Generation.Temperature, "Sampling temperature; 0 always picks the most frequent word")
	fs.Int("top-k", d.Generation.TopK, "Sample only from the k most frequent next words; 0 disables")
	fs.Int("chart-cache", d.Generation.ChartCache, "Number of built charts kept in memory")
	fs.Int("scrape-max-chars", d.Scrape.MaxChars, "Text budget per fetched page")
	fs.Int("scrape-concurrency", d.Scrape.Concurrency, "Parallel page fetches")
	fs.Int("scrape-timeout", d.Scrape.TimeoutSec, "Per-page fetch timeout in seconds")
	fs.String("scrape-user-agent", d.Scrape.UserAgent, "User-Agent sent when fetching pages")
	fs.String("thesaurus", d.Substitute.ThesaurusPath, "YAML thesaurus for synonym substitution")
	fs.Float64("substitute-rate", d.Substitute.Rate, "Probability of replacing an eligible word")
	fs.Bool("substitute-watch", d.Substitute.Watch, "Reload the thesaurus when the file changes")
	fs.Bool("rewrite", d.Rewrite.Enabled, "Pass output through the Gemini rewriter")
	fs.String("rewrite-model", d.Rewrite.Model, "Gemini model used for rewriting")
	fs.String("rewrite-api-key-env", d.Rewrite.APIKeyEnv, "Environment variable holding the Gemini API key")
}

// LoadConfig merges, from lowest to highest precedence, the defaults, a
// config file, DROSERA_* environment variables and explicitly set flags.
// With an empty path, ./drosera.{yaml,json,toml} is used when present.
func LoadConfig(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("DROSERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("drosera")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("server.addr", c.Server.Addr)
	v.SetDefault("server.log_level", c.Server.LogLevel)
	v.SetDefault("server.log_format", c.Server.LogFormat)
	v.SetDefault("server.trusted_proxies", c.Server.TrustedProxies)
	v.SetDefault("server.data_dir", c.Server.DataDir)
	v.SetDefault("server.database_path", c.Server.DatabasePath)
	v.SetDefault("generation.state_size", c.Generation.StateSize)
	v.SetDefault("generation.min_words", c.Generation.MinWords)
	v.SetDefault("generation.max_extra_words", c.Generation.MaxExtraWords)
	v.SetDefault("generation.casing", c.Generation.Casing)
	v.SetDefault("generation.temperature", c.Generation.Temperature)
	v.SetDefault("generation.top_k", c.Generation.TopK)
	v.SetDefault("generation.chart_cache", c.Generation.ChartCache)
	v.SetDefault("scrape.max_chars", c.Scrape.MaxChars)
	v.SetDefault("scrape.concurrency", c.Scrape.Concurrency)
	v.SetDefault("scrape.timeout_sec", c.Scrape.TimeoutSec)
	v.SetDefault("scrape.user_agent", c.Scrape.UserAgent)
	v.SetDefault("substitute.thesaurus_path", c.Substitute.ThesaurusPath)
	v.SetDefault("substitute.rate", c.Substitute.Rate)
	v.SetDefault("substitute.watch", c.Substitute.Watch)
	v.SetDefault("rewrite.enabled", c.Rewrite.Enabled)
	v.SetDefault("rewrite.model", c.Rewrite.Model)
	v.SetDefault("rewrite.api_key_env", c.Rewrite.APIKeyEnv)
}

// Validate rejects settings that no run could use.
func (c Config) Validate() error {
	gc := c.Generation
	if gc.StateSize < 1 || gc.StateSize > pipeline.MaxStateSize {
		return fmt.Errorf("%w: generation.state_size must be between 1 and %d", markov.ErrConfiguration, pipeline.MaxStateSize)
	}
	if gc.MinWords < gc.StateSize || gc.MinWords > pipeline.MaxMinWords {
		return fmt.Errorf("%w: generation.min_words must be between generation.state_size and %d", markov.ErrConfiguration, pipeline.MaxMinWords)
	}
	if gc.MaxExtraWords < 0 || gc.MaxExtraWords > pipeline.MaxExtraWords {
		return fmt.Errorf("%w: generation.max_extra_words must be between 0 and %d", markov.ErrConfiguration, pipeline.MaxExtraWords)
	}
	if gc.ChartCache < 1 {
		return fmt.Errorf("%w: generation.chart_cache must be at least 1", markov.ErrConfiguration)
	}
	if _, err := markov.ParseCasingPolicy(c.Generation.Casing); err != nil {
		return err
	}
	if c.Substitute.Rate < 0 || c.Substitute.Rate > 1 {
		return fmt.Errorf("%w: substitute.rate must be between 0 and 1", markov.ErrConfiguration)
	}
	if _, err := parseLogLevel(c.Server.LogLevel); err != nil {
		return err
	}
	return nil
}

// WriteConfigFile atomically writes c to path as YAML, or as JSON when path
// ends in .json. An existing file is only replaced when overwrite is set.
func WriteConfigFile(path string, c Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".yaml", ".yml", "":
		data, err = yaml.Marshal(c)
	default:
		return fmt.Errorf("unsupported config format %q; use .yaml or .json", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
