package main

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/CTAG07/Drosera/pkg/corpus"
	"github.com/CTAG07/Drosera/pkg/markov"
	"github.com/CTAG07/Drosera/pkg/pipeline"
)

// CorpusAPI holds the dependencies for the corpus API handlers.
type CorpusAPI struct {
	app    *App
	logger *slog.Logger
}

// NewCorpusAPI creates a new instance of the CorpusAPI.
func NewCorpusAPI(app *App) *CorpusAPI {
	return &CorpusAPI{
		app:    app,
		logger: app.logger,
	}
}

// RegisterRoutes sets up the routing for all /api/corpora endpoints.
func (c *CorpusAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/corpora", c.handleListAndCreate)
	mux.HandleFunc("/api/corpora/", c.handleCorpusByName)
}

type CreateCorpusRequest struct {
	Name string `json:"name"`
}

type AddDocumentRequest struct {
	Source string `json:"source"`
	Body   string `json:"body"`
}

type FetchRequest struct {
	URLs []string `json:"urls"`
}

// handleListAndCreate handles GET for listing and POST for creating corpora.
func (c *CorpusAPI) handleListAndCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !hasScope(r, "corpus:read") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'corpus:read' scope")
			return
		}
		corpora, err := c.app.store.ListCorpora(r.Context())
		if err != nil {
			c.logger.Error("Failed to list corpora", slog.String("error", err.Error()))
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve corpora")
			return
		}
		respondWithJSON(w, http.StatusOK, corpora)

	case http.MethodPost:
		if !hasScope(r, "corpus:write") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'corpus:write' scope")
			return
		}
		var req CreateCorpusRequest
		if !decodeJSON(w, r, &req, maxJSONBody) {
			return
		}
		info, err := c.app.store.CreateCorpus(r.Context(), req.Name)
		if err != nil {
			respondWithError(w, statusForError(err), err.Error())
			return
		}
		respondWithJSON(w, http.StatusCreated, info)

	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleCorpusByName routes actions for a single corpus: its info, documents,
// web fetches and chart statistics.
func (c *CorpusAPI) handleCorpusByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/corpora/"), "/")
	parts := strings.Split(path, "/")
	name := parts[0]

	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Corpus name not specified")
		return
	}

	info, err := c.app.store.GetCorpusInfo(r.Context(), name)
	if err != nil {
		code := statusForError(err)
		if code == http.StatusNotFound {
			respondWithError(w, code, "Corpus not found")
			return
		}
		c.logger.Error("Failed to get corpus info", slog.String("name", name), slog.String("error", err.Error()))
		respondWithError(w, code, "Database error")
		return
	}

	if len(parts) == 1 { // Path is just /api/corpora/{name}
		switch r.Method {
		case http.MethodGet:
			if !hasScope(r, "corpus:read") {
				respondWithError(w, http.StatusForbidden, "Forbidden: requires 'corpus:read' scope")
				return
			}
			respondWithJSON(w, http.StatusOK, info)
		case http.MethodDelete:
			if !hasScope(r, "corpus:write") {
				respondWithError(w, http.StatusForbidden, "Forbidden: requires 'corpus:write' scope")
				return
			}
			if err = c.app.store.RemoveCorpus(r.Context(), info); err != nil {
				c.logger.Error("Failed to remove corpus", slog.String("name", name), slog.String("error", err.Error()))
				respondWithError(w, statusForError(err), "Failed to remove corpus")
				return
			}
			c.app.pipeline.Invalidate()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	switch parts[1] {
	case "documents":
		switch r.Method {
		case http.MethodGet:
			if !hasScope(r, "corpus:read") {
				respondWithError(w, http.StatusForbidden, "Forbidden: requires 'corpus:read' scope")
				return
			}
			docs, err := c.app.store.Documents(r.Context(), info)
			if err != nil {
				c.logger.Error("Failed to list documents", slog.String("name", name), slog.String("error", err.Error()))
				respondWithError(w, http.StatusInternalServerError, "Failed to retrieve documents")
				return
			}
			respondWithJSON(w, http.StatusOK, docs)
		case http.MethodPost:
			if !hasScope(r, "corpus:write") {
				respondWithError(w, http.StatusForbidden, "Forbidden: requires 'corpus:write' scope")
				return
			}
			var req AddDocumentRequest
			if !decodeJSON(w, r, &req, maxDocumentBody) {
				return
			}
			if req.Source == "" {
				req.Source = "api"
			}
			doc, err := c.app.store.AddDocument(r.Context(), info, req.Source, req.Body)
			if err != nil {
				respondWithError(w, statusForError(err), err.Error())
				return
			}
			c.app.pipeline.Invalidate()
			respondWithJSON(w, http.StatusCreated, doc)
		default:
			w.Header().Set("Allow", "GET, POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}

	case "fetch":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if !hasScope(r, "corpus:write") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'corpus:write' scope")
			return
		}
		var req FetchRequest
		if !decodeJSON(w, r, &req, maxJSONBody) {
			return
		}
		if len(req.URLs) == 0 {
			respondWithError(w, http.StatusBadRequest, "At least one URL is required")
			return
		}
		fetched, err := c.app.fetcher.FetchAll(r.Context(), req.URLs)
		if err != nil {
			c.logger.Warn("Fetch into corpus failed", slog.String("name", name), slog.String("error", err.Error()))
			respondWithError(w, statusForError(err), err.Error())
			return
		}
		docs := make([]any, 0, len(fetched))
		for _, f := range fetched {
			doc, err := c.app.store.AddDocument(r.Context(), info, f.URL, f.Text)
			if err != nil {
				if len(docs) > 0 {
					c.app.pipeline.Invalidate()
				}
				respondWithError(w, statusForError(err), err.Error())
				return
			}
			docs = append(docs, doc)
		}
		c.app.pipeline.Invalidate()
		respondWithJSON(w, http.StatusCreated, docs)

	case "chart":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if !hasScope(r, "corpus:read") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'corpus:read' scope")
			return
		}
		c.handleChart(w, r, info)

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleChart reports statistics for the chart of a stored corpus, or exports
// it when ?export=1 is given.
func (c *CorpusAPI) handleChart(w http.ResponseWriter, r *http.Request, info corpus.Info) {
	name := info.Name
	q := r.URL.Query()
	stateSize := c.app.config.Generation.StateSize
	if v := q.Get("state_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > pipeline.MaxStateSize {
			respondWithError(w, http.StatusBadRequest, "Invalid state_size")
			return
		}
		stateSize = n
	}
	var prune int
	if v := q.Get("prune"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid prune count")
			return
		}
		prune = n
	}

	text, err := c.app.store.Text(r.Context(), info)
	if err != nil {
		respondWithError(w, statusForError(err), err.Error())
		return
	}
	chart, err := c.app.pipeline.Chart(r.Context(), text, stateSize)
	if err != nil {
		respondWithError(w, statusForError(err), err.Error())
		return
	}
	if prune > 0 {
		if chart, err = chart.Prune(prune); err != nil {
			respondWithError(w, statusForError(err), err.Error())
			return
		}
	}

	if q.Get("export") != "" {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+name+".chart.json\"")
		if err = chart.Export(w); err != nil {
			c.logger.Error("Failed to export chart", slog.String("name", name), slog.String("error", err.Error()))
		}
		return
	}
	respondWithJSON(w, http.StatusOK, struct {
		Corpus string `json:"corpus"`
		markov.ChartStats
	}{Corpus: name, ChartStats: chart.Stats()})
}
