package rewrite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-2.0-flash"
	// DefaultTemperature keeps edits conservative.
	DefaultTemperature = 0.2
)

const systemInstruction = `You repair machine-generated text.
Make the smallest edits that turn the input into grammatical sentences.
Keep the original words and their order wherever possible.
Do not add new ideas, headings, quotes or commentary.
Reply with the edited text only.`

// GeminiConfig configures a Gemini rewriter.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	// BaseURL overrides the API endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini rewrites text with a Gemini model.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *slog.Logger
}

// NewGemini creates a Gemini rewriter. An API key is required.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Gemini{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the rewriter. By default, all logs are discarded.
func (g *Gemini) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

// Rewrite sends text to the model and returns its edited version.
func (g *Gemini) Rewrite(ctx context.Context, text string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), config)
	if err != nil {
		return "", fmt.Errorf("gemini rewrite failed: %w", err)
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", fmt.Errorf("%w from model %s", ErrEmptyResponse, g.model)
	}

	g.logger.DebugContext(ctx, "Text rewritten",
		slog.String("model", g.model),
		slog.Int("input_characters", len(text)),
		slog.Int("output_characters", len(out)),
	)
	return out, nil
}
