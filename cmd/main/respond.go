package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/CTAG07/Drosera/pkg/corpus"
	"github.com/CTAG07/Drosera/pkg/markov"
	"github.com/CTAG07/Drosera/pkg/pipeline"
	"github.com/CTAG07/Drosera/pkg/scrape"
)

const (
	maxJSONBody     = 1 << 20
	maxDocumentBody = 16 << 20
)

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// decodeJSON reads a JSON body of at most limit bytes into v. It writes a 400
// response and returns false when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, limit int64) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return false
	}
	return true
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, corpus.ErrCorpusExists):
		return http.StatusConflict
	case errors.Is(err, corpus.ErrInvalidName),
		errors.Is(err, corpus.ErrEmptyDocument),
		errors.Is(err, markov.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, markov.ErrEmptyChart),
		errors.Is(err, markov.ErrNoStarterAvailable),
		errors.Is(err, markov.ErrNoTerminalFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrRewrite),
		errors.Is(err, scrape.ErrBadStatus),
		errors.Is(err, scrape.ErrNoText):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
