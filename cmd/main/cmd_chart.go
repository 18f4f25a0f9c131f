package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/CTAG07/Drosera/pkg/markov"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

func newChartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Inspect and export transition charts",
	}
	cmd.AddCommand(newChartStatsCmd())
	cmd.AddCommand(newChartExportCmd())
	cmd.AddCommand(newChartGenerateCmd())
	return cmd
}

// chartFromSource builds the chart for a command's corpus flags, pruned when minCount > 0.
func chartFromSource(ctx context.Context, app *App, source *sourceFlags, stdin io.Reader, minCount int) (*markov.Chart, error) {
	text, _, err := source.load(ctx, app, stdin)
	if err != nil {
		return nil, err
	}
	chart, err := app.pipeline.Chart(ctx, text, app.config.Generation.StateSize)
	if err != nil {
		return nil, err
	}
	if minCount > 0 {
		return chart.Prune(minCount)
	}
	return chart, nil
}

func newChartStatsCmd() *cobra.Command {
	var (
		source sourceFlags
		prune  int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print statistics for the chart of a corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				chart, err := chartFromSource(ctx, app, &source, cmd.InOrStdin(), prune)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(chart.Stats())
			})
		},
	}
	source.register(cmd)
	cmd.Flags().IntVar(&prune, "prune", 0, "Drop transitions seen this many times or fewer")
	return cmd
}

func newChartExportCmd() *cobra.Command {
	var (
		source sourceFlags
		prune  int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the chart of a corpus as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				chart, err := chartFromSource(ctx, app, &source, cmd.InOrStdin(), prune)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					return chart.Export(cmd.OutOrStdout())
				}

				var buf bytes.Buffer
				if err = chart.Export(&buf); err != nil {
					return err
				}
				if err = atomic.WriteFile(out, &buf); err != nil {
					return fmt.Errorf("failed to write chart: %w", err)
				}
				app.logger.Info("Chart exported", slog.String("path", out), slog.Int("states", chart.Len()))
				return nil
			})
		},
	}
	source.register(cmd)
	cmd.Flags().IntVar(&prune, "prune", 0, "Drop transitions seen this many times or fewer")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file; stdout when empty")
	return cmd
}

func newChartGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate FILE",
		Short: "Generate text from an exported chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() {
					_ = f.Close()
				}()
				chart, err := markov.ImportChart(f)
				if err != nil {
					return err
				}

				req, err := app.request()
				if err != nil {
					return err
				}
				result, err := app.generator.Generate(ctx, chart,
					markov.WithMinWords(max(req.MinWords, chart.Order())),
					markov.WithMaxExtraWords(req.MaxExtraWords),
					markov.WithCasing(req.Casing),
					markov.WithTemperature(req.Temperature),
					markov.WithTopK(req.TopK),
				)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Text())
				return err
			})
		},
	}
	return cmd
}
