package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/verigate/internal/gate"
)

func newTestServer(t *testing.T, webhookToken string) *httptest.Server {
	t.Helper()
	g := gate.New(gate.Deps{}, "", "")
	srv := httptest.NewServer(New(g, webhookToken))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhook_RouteAbsentInPollingMode(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/webhook/anything", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhook_TokenMismatch(t *testing.T) {
	srv := newTestServer(t, "real-token")

	resp, err := http.Post(srv.URL+"/webhook/guessed", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhook_BadBody(t *testing.T) {
	srv := newTestServer(t, "real-token")

	resp, err := http.Post(srv.URL+"/webhook/real-token", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook_AcceptsUpdate(t *testing.T) {
	srv := newTestServer(t, "real-token")

	resp, err := http.Post(srv.URL+"/webhook/real-token", "application/json", strings.NewReader(`{"update_id":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
