package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg *Config
)

// NewRootCmd builds the drosera command tree.
func NewRootCmd() *cobra.Command {
	defaults := DefaultConfig()

	cmd := &cobra.Command{
		Use:           "drosera",
		Short:         "Generate text from word-level Markov chains",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			activeCfg = &loaded
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (yaml|toml|json); defaults to ./drosera.*")
	RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newChartCmd())
	cmd.AddCommand(newCorpusCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func parseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", levelStr)
	}
}

// newLogger builds the process logger from the server config. Logs go to w
// so that command output on stdout stays clean.
func newLogger(w io.Writer, config ServerConfig) *slog.Logger {
	level, err := parseLogLevel(config.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(config.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// requireConfig returns the configuration loaded by the root command.
func requireConfig() (Config, error) {
	if activeCfg == nil {
		return Config{}, fmt.Errorf("configuration not loaded")
	}
	return *activeCfg, nil
}

// withApp loads the config, opens the App and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	config, err := requireConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), config.Server)
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := newApp(ctx, config, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}
