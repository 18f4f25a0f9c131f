package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const authHeader = "drosera-auth"

type contextKey string

const contextKeyScopes = contextKey("scopes")

// AuthAPI serves key management and guards the rest of the API.
type AuthAPI struct {
	keys   keyStore
	logger *slog.Logger
}

func NewAuthAPI(db *sql.DB, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{
		keys:   keyStore{db: db},
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints on a standard http.ServeMux.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleCheckMe)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKeyByID)
}

// CreateKeyRequest is the expected JSON body for creating a new key.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse is the JSON response after creating a key. RawKey is
// shown once and can not be recovered later.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

// Authenticate resolves the "drosera-auth" header to a scope set. While no
// key exists the API is open and every request holds the master scope.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scopes, err := a.resolve(r)
		switch {
		case errors.Is(err, errKeyNotFound):
			respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		case err != nil:
			a.logger.Error("Authentication failed", slog.String("error", err.Error()))
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyScopes, scopes)))
	})
}

func (a *AuthAPI) resolve(r *http.Request) (scopeSet, error) {
	n, err := a.keys.count(r.Context())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return newScopeSet(masterScope), nil
	}
	raw := r.Header.Get(authHeader)
	if raw == "" {
		return nil, errKeyNotFound
	}
	return a.keys.lookup(r.Context(), raw)
}

// hasScope reports whether the request was granted scope.
func hasScope(r *http.Request, scope string) bool {
	scopes, ok := r.Context().Value(contextKeyScopes).(scopeSet)
	return ok && scopes.allows(scope)
}

// requireScope answers 403 and returns false when the request lacks scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if hasScope(r, scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, "Forbidden: requires '"+scope+"' scope")
	return false
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	scopes, ok := r.Context().Value(contextKeyScopes).(scopeSet)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string][]string{"scopes": scopes.sorted()})
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, "auth:manage") {
		return
	}

	if r.Method == http.MethodGet {
		keys, err := a.keys.list(r.Context())
		if err != nil {
			a.logger.Error("Failed to list API keys", slog.String("error", err.Error()))
			respondWithError(w, http.StatusInternalServerError, "Failed to list keys")
			return
		}
		respondWithJSON(w, http.StatusOK, keys)
		return
	}

	var req CreateKeyRequest
	if !decodeJSON(w, r, &req, maxJSONBody) {
		return
	}
	requested, err := parseScopes(req.Scopes)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, raw, granted, err := a.keys.create(r.Context(), requested, req.Description)
	if err != nil {
		a.logger.Error("Failed to create API key", slog.String("error", err.Error()))
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}

	scopes := granted.sorted()
	a.logger.Info("API key created", slog.Int("id", id), slog.Any("scopes", scopes))
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{ID: id, RawKey: raw, Scopes: scopes})
}

func (a *AuthAPI) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed for this key resource")
		return
	}
	id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}
	if !requireScope(w, r, "auth:manage") {
		return
	}

	switch err = a.keys.remove(r.Context(), id); {
	case err == nil:
		a.logger.Info("API key deleted", slog.Int("id", id))
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, errPrimaryKey):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errKeyNotFound):
		respondWithError(w, http.StatusNotFound, "Key not found")
	default:
		a.logger.Error("Failed to delete API key", slog.Int("id", id), slog.String("error", err.Error()))
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
	}
}
