package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// sourceFlags selects the corpus a command reads. Every given source is
// used, joined with newlines in the order text, files, corpus, URLs.
type sourceFlags struct {
	text   string
	files  []string
	corpus string
	urls   []string
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.text, "text", "", "Corpus text given inline")
	cmd.Flags().StringSliceVar(&s.files, "file", nil, "Read the corpus from a file (repeatable, - for stdin)")
	cmd.Flags().StringVar(&s.corpus, "corpus", "", "Use a stored corpus by name")
	cmd.Flags().StringSliceVar(&s.urls, "url", nil, "Fetch corpus text from a web page (repeatable)")
}

// load gathers the corpus text and a label naming its stored corpus, if any.
func (s *sourceFlags) load(ctx context.Context, app *App, stdin io.Reader) (string, string, error) {
	var parts []string

	if s.text != "" {
		parts = append(parts, s.text)
	}
	for _, path := range s.files {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return "", "", fmt.Errorf("failed to read corpus file: %w", err)
		}
		parts = append(parts, string(data))
	}
	if s.corpus != "" {
		info, err := app.store.GetCorpusInfo(ctx, s.corpus)
		if err != nil {
			return "", "", err
		}
		text, err := app.store.Text(ctx, info)
		if err != nil {
			return "", "", err
		}
		parts = append(parts, text)
	}
	if len(s.urls) > 0 {
		docs, err := app.fetcher.FetchAll(ctx, s.urls)
		if err != nil {
			return "", "", err
		}
		for _, doc := range docs {
			parts = append(parts, doc.Text)
		}
	}

	if len(parts) == 0 {
		return "", "", fmt.Errorf("no corpus given; use --text, --file, --corpus or --url")
	}
	return strings.Join(parts, "\n"), s.corpus, nil
}
