package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/CTAG07/Drosera/pkg/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestServer creates an App backed by a temporary database and serves
// its API with httptest.
func setupTestServer(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Server.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	cfg.Server.TrustedProxies = []string{"127.0.0.1"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := newApp(t.Context(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	actions := make(chan string, 1)
	server, err := NewServer(app, actions)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, actions
}

// doJSON sends body as JSON and decodes a JSON answer into out when out is non-nil.
func doJSON(t *testing.T, ts *httptest.Server, method, path, key string, body, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, ts.URL+path, r)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set(authHeader, key)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthCheck(t *testing.T) {
	ts, _ := setupTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/health", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCorpusLifecycle(t *testing.T) {
	ts, _ := setupTestServer(t)

	var info corpus.Info
	require.Equal(t, http.StatusCreated, doJSON(t, ts, http.MethodPost, "/api/corpora", "", CreateCorpusRequest{Name: "cats"}, &info))
	assert.Equal(t, "cats", info.Name)

	assert.Equal(t, http.StatusConflict, doJSON(t, ts, http.MethodPost, "/api/corpora", "", CreateCorpusRequest{Name: "cats"}, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, ts, http.MethodPost, "/api/corpora", "", CreateCorpusRequest{Name: ""}, nil))

	var doc corpus.Document
	require.Equal(t, http.StatusCreated, doJSON(t, ts, http.MethodPost, "/api/corpora/cats/documents", "",
		AddDocumentRequest{Body: "The cat sat. The cat sat."}, &doc))
	assert.Equal(t, "api", doc.Source)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, ts, http.MethodPost, "/api/corpora/cats/documents", "",
		AddDocumentRequest{Body: "   "}, nil))

	var list []corpus.Info
	require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/corpora", "", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Documents)

	var stats struct {
		Corpus string `json:"corpus"`
		States int    `json:"states"`
		Order  int    `json:"order"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/corpora/cats/chart?state_size=2", "", nil, &stats))
	assert.Equal(t, "cats", stats.Corpus)
	assert.Equal(t, 2, stats.Order)
	assert.Equal(t, 3, stats.States)

	assert.Equal(t, http.StatusNotFound, doJSON(t, ts, http.MethodGet, "/api/corpora/dogs", "", nil, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, ts, http.MethodGet, "/api/corpora/cats/bogus", "", nil, nil))
	assert.Equal(t, http.StatusNoContent, doJSON(t, ts, http.MethodDelete, "/api/corpora/cats", "", nil, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, ts, http.MethodDelete, "/api/corpora/cats", "", nil, nil))
}

func TestCorpusFetch(t *testing.T) {
	ts, _ := setupTestServer(t)
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><body><h1>Title here.</h1><p>The cat sat.</p><script>x()</script></body></html>")
	}))
	t.Cleanup(page.Close)

	require.Equal(t, http.StatusCreated, doJSON(t, ts, http.MethodPost, "/api/corpora", "", CreateCorpusRequest{Name: "web"}, nil))

	var docs []corpus.Document
	require.Equal(t, http.StatusCreated, doJSON(t, ts, http.MethodPost, "/api/corpora/web/fetch", "",
		FetchRequest{URLs: []string{page.URL}}, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, page.URL, docs[0].Source)
	assert.Equal(t, "Title here. The cat sat.", docs[0].Body)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, ts, http.MethodPost, "/api/corpora/web/fetch", "", FetchRequest{}, nil))
}

func TestGenerateEndpoint(t *testing.T) {
	ts, _ := setupTestServer(t)
	require.Equal(t, http.StatusCreated, doJSON(t, ts, http.MethodPost, "/api/corpora", "", CreateCorpusRequest{Name: "cats"}, nil))
	require.Equal(t, http.StatusCreated, doJSON(t, ts, http.MethodPost, "/api/corpora/cats/documents", "",
		AddDocumentRequest{Body: "The cat sat. The cat sat."}, nil))

	stateSize, minWords, temperature := 2, 4, 0.0

	var resp GenerateResponse
	require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodPost, "/api/generate", "", GenerateRequest{
		Corpus:      "cats",
		StateSize:   &stateSize,
		MinWords:    &minWords,
		Temperature: &temperature,
	}, &resp))
	require.NotNil(t, resp.Output)
	assert.Equal(t, "The cat sat. The cat sat.", resp.Final)
	assert.Equal(t, resp.Raw, resp.Final)
	assert.Equal(t, 6, resp.Words)
	assert.Equal(t, 2, resp.ExtraWords)
	assert.NotEmpty(t, resp.RunID)

	var runs []corpus.Run
	require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/runs?limit=10", "", nil, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].Id)
	assert.Equal(t, "cats", runs[0].CorpusName)

	var summary GlobalStatsSummary
	require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/stats/summary", "", nil, &summary))
	assert.Equal(t, 1, summary.Runs.Runs)
	assert.Equal(t, 1, summary.CachedCharts)

	t.Run("errors", func(t *testing.T) {
		tooShort, three := 1, 3
		huge, maxInt, negative := 1<<32, math.MaxInt, -1
		tests := []struct {
			name string
			req  GenerateRequest
			want int
		}{
			{"no source", GenerateRequest{}, http.StatusBadRequest},
			{"both sources", GenerateRequest{Corpus: "cats", Text: "A b."}, http.StatusBadRequest},
			{"unknown corpus", GenerateRequest{Corpus: "dogs"}, http.StatusNotFound},
			{"min words below state size", GenerateRequest{Text: "The cat sat. The cat sat.", StateSize: &stateSize, MinWords: &tooShort}, http.StatusBadRequest},
			{"corpus shorter than state", GenerateRequest{Text: "Two words.", StateSize: &three, MinWords: &three}, http.StatusBadRequest},
			{"no starter", GenerateRequest{Text: "the cat sat. the dog ran.", StateSize: &stateSize, MinWords: &minWords}, http.StatusUnprocessableEntity},
			{"huge min words", GenerateRequest{Text: "The cat sat. The cat sat.", MinWords: &huge}, http.StatusBadRequest},
			{"maximum int min words", GenerateRequest{Text: "The cat sat. The cat sat.", MinWords: &maxInt}, http.StatusBadRequest},
			{"huge state size", GenerateRequest{Text: "The cat sat. The cat sat.", StateSize: &maxInt, MinWords: &maxInt}, http.StatusBadRequest},
			{"huge max extra words", GenerateRequest{Text: "The cat sat. The cat sat.", MaxExtraWords: &huge}, http.StatusBadRequest},
			{"negative max extra words", GenerateRequest{Text: "The cat sat. The cat sat.", MaxExtraWords: &negative}, http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.want, doJSON(t, ts, http.MethodPost, "/api/generate", "", tt.req, nil))
			})
		}
	})

	t.Run("seeded runs repeat", func(t *testing.T) {
		text := "The cat sat. The dog sat. The cat ran. A dog ran. The bird sat."
		seed := uint64(42)
		var before, after GlobalStatsSummary
		require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/stats/summary", "", nil, &before))

		var first, second GenerateResponse
		req := GenerateRequest{Text: text, StateSize: &stateSize, MinWords: &minWords, Seed: &seed, NoRecord: true}
		require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodPost, "/api/generate", "", req, &first))
		require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodPost, "/api/generate", "", req, &second))
		assert.Equal(t, first.Final, second.Final)
		assert.NotEqual(t, first.RunID, second.RunID)

		require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/stats/summary", "", nil, &after))
		assert.Equal(t, before.CachedCharts+1, after.CachedCharts, "seeded runs should share the chart cache")
	})

	t.Run("corpus changes drop cached charts", func(t *testing.T) {
		var summary GlobalStatsSummary
		require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/stats/summary", "", nil, &summary))
		require.NotZero(t, summary.CachedCharts)

		require.Equal(t, http.StatusCreated, doJSON(t, ts, http.MethodPost, "/api/corpora/cats/documents", "",
			AddDocumentRequest{Body: "The dog ran."}, nil))
		require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/stats/summary", "", nil, &summary))
		assert.Zero(t, summary.CachedCharts)

		require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/corpora/cats/chart?state_size=1", "", nil, nil))
		require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/stats/summary", "", nil, &summary))
		assert.Equal(t, 1, summary.CachedCharts)

		require.Equal(t, http.StatusNoContent, doJSON(t, ts, http.MethodDelete, "/api/corpora/cats", "", nil, nil))
		require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/stats/summary", "", nil, &summary))
		assert.Zero(t, summary.CachedCharts)
	})

	assert.Equal(t, http.StatusMethodNotAllowed, doJSON(t, ts, http.MethodGet, "/api/generate", "", nil, nil))
}

func TestAuthentication(t *testing.T) {
	ts, _ := setupTestServer(t)

	// The first key is always a master key, whatever scopes are requested.
	var master CreateKeyResponse
	require.Equal(t, http.StatusCreated, doJSON(t, ts, http.MethodPost, "/api/auth/keys", "",
		CreateKeyRequest{Scopes: []string{"corpus:read"}, Description: "admin"}, &master))
	assert.Equal(t, []string{"*"}, master.Scopes)
	assert.True(t, strings.HasPrefix(master.RawKey, apiKeyPrefix))

	assert.Equal(t, http.StatusUnauthorized, doJSON(t, ts, http.MethodGet, "/api/corpora", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, ts, http.MethodGet, "/api/corpora", "dros_wrong", nil, nil))
	assert.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/corpora", master.RawKey, nil, nil))
	assert.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/health", "", nil, nil))

	var reader CreateKeyResponse
	require.Equal(t, http.StatusCreated, doJSON(t, ts, http.MethodPost, "/api/auth/keys", master.RawKey,
		CreateKeyRequest{Scopes: []string{"corpus:read"}, Description: "reader"}, &reader))
	assert.Equal(t, []string{"corpus:read"}, reader.Scopes)

	var me map[string][]string
	require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/auth/me", reader.RawKey, nil, &me))
	assert.Equal(t, []string{"corpus:read"}, me["scopes"])
	assert.Equal(t, http.StatusForbidden, doJSON(t, ts, http.MethodGet, "/api/auth/keys", reader.RawKey, nil, nil))
	assert.Equal(t, http.StatusForbidden, doJSON(t, ts, http.MethodDelete, "/api/auth/keys/"+strconv.Itoa(master.ID), reader.RawKey, nil, nil))

	assert.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/corpora", reader.RawKey, nil, nil))
	assert.Equal(t, http.StatusForbidden, doJSON(t, ts, http.MethodPost, "/api/corpora", reader.RawKey, CreateCorpusRequest{Name: "x"}, nil))
	assert.Equal(t, http.StatusForbidden, doJSON(t, ts, http.MethodPost, "/api/generate", reader.RawKey, GenerateRequest{Text: "A b."}, nil))
	assert.Equal(t, http.StatusForbidden, doJSON(t, ts, http.MethodPost, "/api/auth/keys", reader.RawKey, CreateKeyRequest{Scopes: []string{"*"}}, nil))

	assert.Equal(t, http.StatusBadRequest, doJSON(t, ts, http.MethodPost, "/api/auth/keys", master.RawKey,
		CreateKeyRequest{Scopes: []string{"everything"}}, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, ts, http.MethodPost, "/api/auth/keys", master.RawKey,
		CreateKeyRequest{Description: "no scopes"}, nil))

	var keys []APIKeyInfo
	require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/auth/keys", master.RawKey, nil, &keys))
	assert.Len(t, keys, 2)
	assert.Equal(t, []string{"*"}, keys[0].Scopes)
	assert.Equal(t, "reader", keys[1].Description)
	assert.Equal(t, http.StatusNotFound, doJSON(t, ts, http.MethodDelete, "/api/auth/keys/999", master.RawKey, nil, nil))

	assert.Equal(t, http.StatusBadRequest, doJSON(t, ts, http.MethodDelete, "/api/auth/keys/1", master.RawKey, nil, nil))
	assert.Equal(t, http.StatusNoContent, doJSON(t, ts, http.MethodDelete, "/api/auth/keys/"+strconv.Itoa(reader.ID), master.RawKey, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, ts, http.MethodGet, "/api/corpora", reader.RawKey, nil, nil))
}

func TestServerActions(t *testing.T) {
	ts, actions := setupTestServer(t)
	assert.Equal(t, http.StatusMethodNotAllowed, doJSON(t, ts, http.MethodGet, "/api/server/restart", "", nil, nil))
	assert.Equal(t, http.StatusAccepted, doJSON(t, ts, http.MethodPost, "/api/server/restart", "", nil, nil))
	assert.Equal(t, actionRestart, <-actions)

	var version VersionInfo
	require.Equal(t, http.StatusOK, doJSON(t, ts, http.MethodGet, "/api/server/version", "", nil, &version))
	assert.Equal(t, Version, version.Version)
}

func TestGetClientIP(t *testing.T) {
	trusted, err := parseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"direct", "203.0.113.9:5000", nil, "203.0.113.9"},
		{"untrusted peer ignores headers", "203.0.113.9:5000", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.9"},
		{"trusted prefix uses forwarded for", "10.1.2.3:80", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.1.2.3"}, "1.2.3.4"},
		{"trusted address uses real ip", "192.168.1.1:80", map[string]string{"X-Real-Ip": "5.6.7.8"}, "5.6.7.8"},
		{"trusted without headers", "192.168.1.1:80", nil, "192.168.1.1"},
		{"no port", "203.0.113.9", nil, "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(r, trusted))
		})
	}

	_, err = parseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = parseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
}
