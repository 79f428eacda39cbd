package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubLogin_StoresToken(t *testing.T) {
	// Given a GitHub that approves the device code on the first poll
	mux := http.NewServeMux()
	mux.HandleFunc("/login/device/code", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"device_code":"dev","user_code":"WXYZ-0000","verification_uri":"https://github.example/device","expires_in":60,"interval":1}`))
	})
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_cli","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"login":"octo"}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	tokenDir := t.TempDir()
	t.Setenv("VAULTSYNC_TOKEN_DIR", tokenDir)
	t.Setenv("VAULTSYNC_GITHUB_CLIENT_ID", "client-1")

	// When
	out, err := runCLI(t, "github", "login", "--api-url", ts.URL, "--auth-url", ts.URL)

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "enter the code WXYZ-0000")
	assert.Contains(t, out, "Signed in as octo")
	token, err := os.ReadFile(filepath.Join(tokenDir, "github"))
	require.NoError(t, err)
	assert.Equal(t, "gho_cli\n", string(token))
}

func TestGitHubLogin_RequiresTokenDir(t *testing.T) {
	t.Setenv("VAULTSYNC_TOKEN_DIR", "")
	t.Setenv("VAULTSYNC_GITHUB_CLIENT_ID", "client-1")

	_, err := runCLI(t, "github", "login")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_dir")
}
