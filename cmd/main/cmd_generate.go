package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/CTAG07/Drosera/pkg/markov"
	"github.com/CTAG07/Drosera/pkg/pipeline"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var (
		source   sourceFlags
		seed     uint64
		asJSON   bool
		noRecord bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sentence-terminated text from a corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				text, corpusName, err := source.load(ctx, app, cmd.InOrStdin())
				if err != nil {
					return err
				}
				req, err := app.request()
				if err != nil {
					return err
				}

				p := app.pipeline
				if cmd.Flags().Changed("seed") {
					p = app.seededPipeline(seed)
				}
				out, err := p.Run(ctx, text, req)
				if err != nil {
					return err
				}
				if !noRecord {
					app.recordRun(ctx, corpusName, req, out)
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(out)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Final)
				return err
			})
		},
	}

	source.register(cmd)
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed the generator for a reproducible walk")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print every stage of the run as JSON")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not store the run in the history")

	return cmd
}

// seededPipeline returns the app's pipeline, chart cache included, drawing
// from a fixed-seed generator.
func (a *App) seededPipeline(seed uint64) *pipeline.Pipeline {
	gen := markov.NewGenerator(rand.NewPCG(seed, seed))
	gen.SetLogger(a.logger)
	return a.pipeline.WithGenerator(gen)
}
