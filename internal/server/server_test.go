package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurobon/vaultsync/internal/metrics"
	"github.com/kurobon/vaultsync/internal/state"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	sm := state.NewSessionManager(state.Options{})
	t.Cleanup(func() { _ = sm.Close() })

	srv := NewServer(sm, opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.Start(ctx)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) (int, []byte) {
	t.Helper()
	reqBody, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(reqBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func dialEvents(t *testing.T, srv *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

// nextEvent reads events until one of the given type arrives.
func nextEvent(t *testing.T, conn *websocket.Conn, eventType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev map[string]any
		require.NoError(t, conn.ReadJSON(&ev))
		if ev["type"] == eventType {
			return ev
		}
	}
}

func TestServerEndpoints(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	vault := t.TempDir()

	t.Run("Ping", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/ping")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("InitSession", func(t *testing.T) {
		status, body := postJSON(t, ts.URL+"/api/session/init", InitSessionRequest{Vault: vault})
		require.Equal(t, http.StatusOK, status, string(body))

		var res InitSessionResponse
		require.NoError(t, json.Unmarshal(body, &res))
		assert.NotEmpty(t, res.SessionID)
		assert.Equal(t, vault, res.Vault)
		assert.False(t, res.IsRepo)
	})

	t.Run("InitSession requires a vault", func(t *testing.T) {
		status, body := postJSON(t, ts.URL+"/api/session/init", InitSessionRequest{})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, string(body), "invalid_arguments")
	})

	t.Run("Commands", func(t *testing.T) {
		status, body := postJSON(t, ts.URL+"/api/command", CommandRequest{Vault: vault, Command: "init"})
		require.Equal(t, http.StatusOK, status, string(body))

		require.NoError(t, os.WriteFile(filepath.Join(vault, "a.md"), []byte("alpha\n"), 0o644))
		status, body = postJSON(t, ts.URL+"/api/command", CommandRequest{
			Vault:   vault,
			Command: "commitAll",
			Args:    json.RawMessage(`{"message": "first"}`),
		})
		require.Equal(t, http.StatusOK, status, string(body))
		var res struct {
			Result string `json:"result"`
		}
		require.NoError(t, json.Unmarshal(body, &res))
		assert.Len(t, res.Result, 40)

		status, body = postJSON(t, ts.URL+"/api/command", CommandRequest{Vault: vault, Command: "hasUncommittedChanges"})
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"result": false}`, string(body))
	})

	t.Run("Command errors", func(t *testing.T) {
		tests := []struct {
			name    string
			req     CommandRequest
			status  int
			code    string
			vaultFn func() string
		}{
			{"unknown command", CommandRequest{Command: "rebase"}, http.StatusBadRequest, "unknown_command", nil},
			{"invalid args", CommandRequest{Command: "commitAll", Args: json.RawMessage(`{}`)}, http.StatusBadRequest, "invalid_arguments", nil},
			{"nothing to commit", CommandRequest{Command: "commitAll", Args: json.RawMessage(`{"message": "m"}`)}, http.StatusConflict, "no_changes", nil},
			{"not merging", CommandRequest{Command: "resolveConflict", Args: json.RawMessage(`{"filePath": "a.md", "resolution": "ours"}`)}, http.StatusConflict, "not_merging", nil},
			{"unknown commit", CommandRequest{Command: "restore", Args: json.RawMessage(`{"commitId": "deadbeef"}`)}, http.StatusNotFound, "object_not_found", nil},
			{"no remote", CommandRequest{Command: "push"}, http.StatusBadGateway, "network_failure", nil},
			{"not a repository", CommandRequest{Command: "history"}, http.StatusNotFound, "not_a_repository", t.TempDir},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.req.Vault = vault
				if tt.vaultFn != nil {
					tt.req.Vault = tt.vaultFn()
				}
				status, body := postJSON(t, ts.URL+"/api/command", tt.req)
				assert.Equal(t, tt.status, status, string(body))

				var res ErrorResponse
				require.NoError(t, json.Unmarshal(body, &res))
				assert.Equal(t, tt.code, res.Code)
				assert.NotEmpty(t, res.Error)
			})
		}
	})

	t.Run("Method not allowed", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/command")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestCommandEvents(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	conn := dialEvents(t, srv, ts)
	vault := t.TempDir()

	status, _ := postJSON(t, ts.URL+"/api/command", CommandRequest{Vault: vault, Command: "init"})
	require.Equal(t, http.StatusOK, status)

	ev := nextEvent(t, conn, EventCommand)
	assert.Equal(t, vault, ev["vault"])
	data, ok := ev["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "init", data["command"])
	assert.Equal(t, true, data["ok"])
}

func TestFileChangedEvents(t *testing.T) {
	srv, ts := newTestServer(t, Options{WatchEnabled: true, WatchDebounce: 20 * time.Millisecond})
	conn := dialEvents(t, srv, ts)
	vault := t.TempDir()

	status, _ := postJSON(t, ts.URL+"/api/session/init", InitSessionRequest{Vault: vault})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, os.WriteFile(filepath.Join(vault, "note.md"), []byte("hello\n"), 0o644))

	ev := nextEvent(t, conn, EventFileChanged)
	data, ok := ev["data"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data["paths"], "note.md")
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Options{Metrics: metrics.NewCollector(nil)})

	status, _ := postJSON(t, ts.URL+"/api/command", CommandRequest{Vault: t.TempDir(), Command: "isRepo"})
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `vaultsync_operations_total{op="isRepo",outcome="ok"} 1`)
}
