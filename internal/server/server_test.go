package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippetvault/internal/auth"
	"github.com/sakif/snippetvault/internal/config"
	"github.com/sakif/snippetvault/internal/model"
	"github.com/sakif/snippetvault/internal/repository/sqlite"
	"github.com/sakif/snippetvault/internal/server"
)

const testSecret = "test-secret-0123456789"

// newTestServer runs the full stack against a temp-file SQLite database.
func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "snippets.db")
	if mutate != nil {
		mutate(cfg)
	}

	store, err := sqlite.New(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(cfg, store, prometheus.NewRegistry(), logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method, path, token string, body any, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out), "%s %s", method, path)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)

	var body map[string]string
	resp := call(t, ts, http.MethodGet, "/healthz", "", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

// TestVersionLifecycle walks the history of one snippet: create, edit,
// restore, compare.
func TestVersionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	var snippet model.Snippet
	resp := call(t, ts, http.MethodPost, "/api/snippets", "", map[string]string{
		"title": "lines", "code": "a\nb\nc", "language": "Text",
	}, &snippet)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "text", snippet.Language)

	resp = call(t, ts, http.MethodPut, "/api/snippets/"+snippet.ID, "", map[string]string{
		"title": "lines", "code": "a\nx\nc", "changeDescription": "edit middle line",
	}, &snippet)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history []model.Version
	call(t, ts, http.MethodGet, "/api/snippets/"+snippet.ID+"/versions", "", nil, &history)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].VersionNumber)
	assert.Equal(t, "edit middle line", history[0].ChangeDescription)
	v1, v2 := history[1], history[0]

	var cmp model.VersionComparison
	resp = call(t, ts, http.MethodGet, "/api/versions/compare?from="+v1.ID+"&to="+v2.ID, "", nil, &cmp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, cmp.CodeChanged)
	assert.False(t, cmp.TitleChanged)
	assert.Equal(t, 1, cmp.Stats.Modified)
	assert.Equal(t, 2, cmp.Stats.Unchanged)

	var restored map[string]bool
	resp = call(t, ts, http.MethodPost, "/api/snippets/"+snippet.ID+"/versions/"+v1.ID+"/restore", "", nil, &restored)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, restored["restored"])

	call(t, ts, http.MethodGet, "/api/snippets/"+snippet.ID, "", nil, &snippet)
	assert.Equal(t, "a\nb\nc", snippet.Code)

	call(t, ts, http.MethodGet, "/api/snippets/"+snippet.ID+"/versions", "", nil, &history)
	require.Len(t, history, 4)
	assert.Equal(t, "a\nx\nc", history[1].Code, "version 3 backs up the pre-restore state")
	assert.Equal(t, "a\nb\nc", history[0].Code, "version 4 is the restored state")

	var v3 model.Version
	resp = call(t, ts, http.MethodGet, "/api/snippets/"+snippet.ID+"/versions/number/3", "", nil, &v3)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, history[1].ID, v3.ID)

	resp = call(t, ts, http.MethodDelete, "/api/snippets/"+snippet.ID, "", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = call(t, ts, http.MethodGet, "/api/versions/"+v1.ID, "", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "versions go with their snippet")
}

func TestRestore_UnknownVersionIs404(t *testing.T) {
	ts := newTestServer(t, nil)

	var snippet model.Snippet
	call(t, ts, http.MethodPost, "/api/snippets", "", map[string]string{"title": "t", "code": "x"}, &snippet)

	resp := call(t, ts, http.MethodPost, "/api/snippets/"+snippet.ID+"/versions/nope/restore", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuth_RequireForWrites(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.JWTSecret = testSecret
		cfg.Auth.RequireForWrites = true
	})
	tokens, err := auth.NewTokenService(testSecret, "snippetvault")
	require.NoError(t, err)
	alice, err := tokens.Generate("alice")
	require.NoError(t, err)
	bob, err := tokens.Generate("bob")
	require.NoError(t, err)

	resp := call(t, ts, http.MethodPost, "/api/snippets", "", map[string]string{"title": "t", "code": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var snippet model.Snippet
	resp = call(t, ts, http.MethodPost, "/api/snippets", alice, map[string]string{"title": "t", "code": "x"}, &snippet)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "alice", snippet.UserID)

	resp = call(t, ts, http.MethodGet, "/api/snippets/"+snippet.ID, "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads stay public")

	resp = call(t, ts, http.MethodPut, "/api/snippets/"+snippet.ID, bob, map[string]string{"title": "t", "code": "y"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var v model.Version
	resp = call(t, ts, http.MethodPost, "/api/snippets/"+snippet.ID+"/versions", alice, map[string]string{"changeDescription": "manual"}, &v)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "alice", v.AuthorID)
	assert.Equal(t, 2, v.VersionNumber)
}

func TestHistoryWritesNeedTheOwner(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.JWTSecret = testSecret
	})
	tokens, err := auth.NewTokenService(testSecret, "snippetvault")
	require.NoError(t, err)
	alice, err := tokens.Generate("alice")
	require.NoError(t, err)
	mallory, err := tokens.Generate("mallory")
	require.NoError(t, err)

	var snippet model.Snippet
	resp := call(t, ts, http.MethodPost, "/api/snippets", alice, map[string]string{"title": "t", "code": "v1"}, &snippet)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = call(t, ts, http.MethodPut, "/api/snippets/"+snippet.ID, alice, map[string]string{"title": "t", "code": "v2"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history []model.Version
	call(t, ts, http.MethodGet, "/api/snippets/"+snippet.ID+"/versions", "", nil, &history)
	require.Len(t, history, 2)
	v1 := history[1]

	resp = call(t, ts, http.MethodPut, "/api/snippets/"+snippet.ID, mallory, map[string]string{"title": "t", "code": "mine"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = call(t, ts, http.MethodPost, "/api/snippets/"+snippet.ID+"/versions/"+v1.ID+"/restore", mallory, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "restore by another user")

	resp = call(t, ts, http.MethodPost, "/api/snippets/"+snippet.ID+"/versions/"+v1.ID+"/restore", "", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "anonymous restore")

	resp = call(t, ts, http.MethodPost, "/api/snippets/"+snippet.ID+"/versions", "", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "anonymous snapshot")

	resp = call(t, ts, http.MethodPost, "/api/snippets/"+snippet.ID+"/versions", mallory, map[string]string{"changeDescription": "x"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "snapshot by another user")

	call(t, ts, http.MethodGet, "/api/snippets/"+snippet.ID, "", nil, &snippet)
	assert.Equal(t, "v2", snippet.Code)
	call(t, ts, http.MethodGet, "/api/snippets/"+snippet.ID+"/versions", "", nil, &history)
	assert.Len(t, history, 2)

	var restored map[string]bool
	resp = call(t, ts, http.MethodPost, "/api/snippets/"+snippet.ID+"/versions/"+v1.ID+"/restore", alice, nil, &restored)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, restored["restored"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	call(t, ts, http.MethodPost, "/api/snippets", "", map[string]string{"title": "t", "code": "x"}, nil)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `snippetvault_versions_created_total{reason="initial"} 1`)
	assert.Contains(t, string(body), `route="/api/snippets"`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.CORSOrigins = []string{"http://editor.test"}
	})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/snippets", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://editor.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://editor.test", resp.Header.Get("Access-Control-Allow-Origin"))
}
