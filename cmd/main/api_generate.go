package main

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/Drosera/pkg/markov"
	"github.com/CTAG07/Drosera/pkg/pipeline"
)

// GenerateAPI holds the dependencies for the generation handlers.
type GenerateAPI struct {
	app    *App
	logger *slog.Logger
}

func NewGenerateAPI(app *App) *GenerateAPI {
	return &GenerateAPI{
		app:    app,
		logger: app.logger,
	}
}

func (g *GenerateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/generate", g.handleGenerate)
}

// GenerateRequest is the JSON body of POST /api/generate. Exactly one of
// Corpus or Text names the source; unset tuning fields fall back to the
// server configuration.
type GenerateRequest struct {
	Corpus        string   `json:"corpus,omitempty"`
	Text          string   `json:"text,omitempty"`
	StateSize     *int     `json:"state_size,omitempty"`
	MinWords      *int     `json:"min_words,omitempty"`
	MaxExtraWords *int     `json:"max_extra_words,omitempty"`
	Casing        *string  `json:"casing,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	Substitute    *bool    `json:"substitute,omitempty"`
	Rewrite       *bool    `json:"rewrite,omitempty"`
	Seed          *uint64  `json:"seed,omitempty"`
	NoRecord      bool     `json:"no_record,omitempty"`
}

// GenerateResponse is the JSON answer of POST /api/generate.
type GenerateResponse struct {
	*pipeline.Output
	Words      int    `json:"words"`
	ExtraWords int    `json:"extra_words"`
	Fallbacks  int    `json:"fallbacks"`
	Starter    string `json:"starter"`
}

// apply layers the request's overrides onto base.
func (req GenerateRequest) apply(base pipeline.Request) (pipeline.Request, error) {
	if req.StateSize != nil {
		base.StateSize = *req.StateSize
	}
	if req.MinWords != nil {
		base.MinWords = *req.MinWords
	}
	if req.MaxExtraWords != nil {
		base.MaxExtraWords = *req.MaxExtraWords
	}
	if req.Casing != nil {
		casing, err := markov.ParseCasingPolicy(*req.Casing)
		if err != nil {
			return base, err
		}
		base.Casing = casing
	}
	if req.Temperature != nil {
		base.Temperature = *req.Temperature
	}
	if req.TopK != nil {
		base.TopK = *req.TopK
	}
	if req.Substitute != nil {
		base.Substitute = *req.Substitute
	}
	if req.Rewrite != nil {
		base.Rewrite = *req.Rewrite
	}
	return base, base.Validate()
}

func (g *GenerateAPI) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "generate") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'generate' scope")
		return
	}

	var body GenerateRequest
	if !decodeJSON(w, r, &body, maxDocumentBody) {
		return
	}
	if (body.Corpus == "") == (strings.TrimSpace(body.Text) == "") {
		respondWithError(w, http.StatusBadRequest, "Exactly one of 'corpus' or 'text' is required")
		return
	}

	base, err := g.app.request()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req, err := body.apply(base)
	if err != nil {
		respondWithError(w, statusForError(err), err.Error())
		return
	}

	text := body.Text
	if body.Corpus != "" {
		info, err := g.app.store.GetCorpusInfo(r.Context(), body.Corpus)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respondWithError(w, http.StatusNotFound, "Corpus not found")
				return
			}
			respondWithError(w, statusForError(err), err.Error())
			return
		}
		if text, err = g.app.store.Text(r.Context(), info); err != nil {
			respondWithError(w, statusForError(err), err.Error())
			return
		}
	}

	p := g.app.pipeline
	if body.Seed != nil {
		p = g.app.seededPipeline(*body.Seed)
	}
	out, err := p.Run(r.Context(), text, req)
	if err != nil {
		code := statusForError(err)
		if code == http.StatusInternalServerError {
			g.logger.Error("Generation failed", slog.String("error", err.Error()))
		}
		respondWithError(w, code, err.Error())
		return
	}
	if !body.NoRecord {
		g.app.recordRun(r.Context(), body.Corpus, req, out)
	}

	respondWithJSON(w, http.StatusOK, GenerateResponse{
		Output:     out,
		Words:      len(out.Result.Words),
		ExtraWords: out.Result.ExtraWords,
		Fallbacks:  out.Result.Fallbacks,
		Starter:    out.Result.Starter.String(),
	})
}
