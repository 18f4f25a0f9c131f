package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCorpusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Manage stored corpora",
	}
	cmd.AddCommand(newCorpusCreateCmd())
	cmd.AddCommand(newCorpusAddCmd())
	cmd.AddCommand(newCorpusFetchCmd())
	cmd.AddCommand(newCorpusListCmd())
	cmd.AddCommand(newCorpusRemoveCmd())
	return cmd
}

func newCorpusCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				info, err := app.store.CreateCorpus(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created corpus %s (id %d)\n", info.Name, info.Id)
				return err
			})
		},
	}
}

func newCorpusAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME [FILE...]",
		Short: "Add documents to a corpus from files, or from stdin when none are given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				info, err := app.store.GetCorpusInfo(ctx, args[0])
				if err != nil {
					return err
				}
				files := args[1:]
				if len(files) == 0 {
					files = []string{"-"}
				}
				for _, path := range files {
					var data []byte
					source := path
					if path == "-" {
						data, err = io.ReadAll(cmd.InOrStdin())
						source = "stdin"
					} else {
						data, err = os.ReadFile(path)
					}
					if err != nil {
						return fmt.Errorf("failed to read %s: %w", path, err)
					}
					doc, err := app.store.AddDocument(ctx, info, source, string(data))
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added document %d from %s\n", doc.Id, source)
				}
				app.pipeline.Invalidate()
				return nil
			})
		},
	}
}

func newCorpusFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch NAME URL...",
		Short: "Fetch web pages and add their text to a corpus",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				info, err := app.store.GetCorpusInfo(ctx, args[0])
				if err != nil {
					return err
				}
				docs, err := app.fetcher.FetchAll(ctx, args[1:])
				if err != nil {
					return err
				}
				for _, d := range docs {
					doc, err := app.store.AddDocument(ctx, info, d.URL, d.Text)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added document %d from %s (%d chars)\n", doc.Id, d.URL, len(d.Text))
				}
				return nil
			})
		},
	}
}

func newCorpusListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored corpora",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				corpora, err := app.store.ListCorpora(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(corpora)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "NAME\tDOCUMENTS\tCHARACTERS")
				for _, c := range corpora {
					_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\n", c.Name, c.Documents, c.Characters)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newCorpusRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Delete a corpus and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				info, err := app.store.GetCorpusInfo(ctx, args[0])
				if err != nil {
					return err
				}
				if err = app.store.RemoveCorpus(ctx, info); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed corpus %s\n", info.Name)
				return err
			})
		},
	}
}
