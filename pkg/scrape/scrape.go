// Package scrape retrieves web pages and reduces them to the running text a
// corpus is built from: the contents of paragraphs and top-level headings.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxChars is the text budget of a single document.
	DefaultMaxChars = 5000
	// DefaultConcurrency bounds parallel fetches in FetchAll.
	DefaultConcurrency = 4
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "Drosera/1.0 (+https://github.com/CTAG07/Drosera)"

	maxBodyBytes = 4 << 20
)

var (
	// ErrBadStatus is returned when a page answers with a non-200 status.
	ErrBadStatus = errors.New("unexpected response status")
	// ErrNoText is returned when a page holds no extractable text.
	ErrNoText = errors.New("no text found")
)

// Document is the text extracted from one URL.
type Document struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Fetcher downloads pages and extracts their text. It is safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	maxChars    int
	concurrency int
	timeout     time.Duration
	userAgent   string
	logger      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxChars sets the per-document text budget. Extraction stops after the
// element that carries the total past n. A value of 0 or less disables the budget.
func WithMaxChars(n int) Option {
	return func(f *Fetcher) { f.maxChars = n }
}

// WithConcurrency sets how many pages FetchAll downloads at once.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithTimeout sets the deadline of a single fetch.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// NewFetcher creates a Fetcher with the given options applied over the defaults.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      http.DefaultClient,
		maxChars:    DefaultMaxChars,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		userAgent:   DefaultUserAgent,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetLogger sets the logger for the Fetcher. By default, all logs are discarded.
func (f *Fetcher) SetLogger(logger *slog.Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// Fetch downloads url and returns its extracted text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("%w: %s returned %s", ErrBadStatus, url, resp.Status)
	}

	text, err := Extract(io.LimitReader(resp.Body, maxBodyBytes), f.maxChars)
	if err != nil {
		return Document{}, fmt.Errorf("failed to extract text from %s: %w", url, err)
	}
	if text == "" {
		return Document{}, fmt.Errorf("%w at %s", ErrNoText, url)
	}

	f.logger.DebugContext(ctx, "Page fetched",
		slog.String("url", url),
		slog.Int("characters", len(text)),
	)
	return Document{URL: url, Text: text}, nil
}

// FetchAll downloads every URL in parallel and returns the documents in the
// order of urls. The first failure cancels the remaining fetches.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]Document, error) {
	docs := make([]Document, len(urls))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(f.concurrency)
	for i, url := range urls {
		eg.Go(func() error {
			doc, err := f.Fetch(egCtx, url)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "Pages fetched", slog.Int("count", len(docs)))
	return docs, nil
}

// Extract parses an HTML document and returns the text of its p, h1, h2 and
// h3 elements in document order, joined by single spaces. Text inside
// script, style and noscript elements is ignored. Once the collected text
// exceeds maxChars, no further elements are read; a maxChars of 0 or less
// reads the whole document.
func Extract(r io.Reader, maxChars int) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var parts []string
	var count int
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return true
			case atom.P, atom.H1, atom.H2, atom.H3:
				text := normalizeSpace(nodeText(n))
				if text != "" {
					parts = append(parts, text)
					count += len(text)
				}
				if maxChars > 0 && count > maxChars {
					return false
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)

	return strings.Join(parts, " "), nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			case atom.Br:
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
