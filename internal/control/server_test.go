package control

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserpilot/internal/config"
	"browserpilot/internal/coordinator"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("TMPDIR redirection")
	}
	t.Setenv("TMPDIR", t.TempDir())

	cfg := &config.Resolved{
		Headless:      true,
		Workspace:     t.TempDir(),
		DisableEditor: true,
	}
	coord := coordinator.New(cfg)
	require.NoError(t, coord.Start(context.Background()))
	t.Cleanup(coord.Shutdown)

	srv := httptest.NewServer(New(coord).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestStatusEndpoint(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report coordinator.StatusReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.False(t, report.BrowserRunning)
	assert.NotZero(t, report.ProxyPort)
	assert.Equal(t, "not detected", report.Editor)
}

func TestBrowsersEndpoint(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/browsers")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}
