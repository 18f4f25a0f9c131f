package main

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CTAG07/Drosera/pkg/corpus"
)

// GlobalStatsSummary provides a high-level overview of stored corpora and
// recorded generation runs.
type GlobalStatsSummary struct {
	Corpora      *corpus.Stats     `json:"corpora"`
	Runs         corpus.RunSummary `json:"runs"`
	CachedCharts int               `json:"cached_charts"`
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	app    *App
	logger *slog.Logger
}

func NewStatsAPI(app *App) *StatsAPI {
	return &StatsAPI{
		app:    app,
		logger: app.logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/runs", s.handleRuns)
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "stats:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'stats:read' scope")
		return
	}

	corpora, err := s.app.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("Failed to get corpus stats", slog.String("error", err.Error()))
		respondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	runs, err := s.app.store.RunSummary(r.Context())
	if err != nil {
		s.logger.Error("Failed to summarize runs", slog.String("error", err.Error()))
		respondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	respondWithJSON(w, http.StatusOK, GlobalStatsSummary{
		Corpora:      corpora,
		Runs:         runs,
		CachedCharts: s.app.pipeline.CachedCharts(),
	})
}

// handleRuns lists recent generation runs, newest first. ?limit= caps the count.
func (s *StatsAPI) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "stats:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'stats:read' scope")
		return
	}

	limit := corpus.DefaultRecentRuns
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, 1000)
	}

	runs, err := s.app.store.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to query runs", slog.String("error", err.Error()))
		respondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	respondWithJSON(w, http.StatusOK, runs)
}
