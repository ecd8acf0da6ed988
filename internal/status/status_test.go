package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"voxelpilot.ai/internal/agent"
	"voxelpilot.ai/internal/metrics"
)

type fixedStatus agent.Status

func (f fixedStatus) Status() agent.Status { return agent.Status(f) }

func get(t *testing.T, h http.Handler, path string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	res := rec.Result()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(b)
}

func TestHealthzAndStatus(t *testing.T) {
	h := Handler(fixedStatus{Connected: true, AgentID: "A1", Name: "pilot", Pos: agent.Pos{1, 2, 3}}, nil)

	res, body := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, body)

	res, body = get(t, h, "/status")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var st agent.Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	require.Equal(t, "A1", st.AgentID)
	require.Equal(t, agent.Pos{1, 2, 3}, st.Pos)

	res, _ = get(t, h, "/metrics")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestStatusDisconnected(t *testing.T) {
	h := Handler(fixedStatus{Name: "pilot"}, nil)
	res, _ := get(t, h, "/status")
	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.Run("ok")
	m.Connected(true)
	h := Handler(fixedStatus{Connected: true}, m.Registry)

	res, body := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.True(t, strings.Contains(body, `voxelpilot_pipeline_runs_total{outcome="ok"} 1`), body)
	require.Contains(t, body, "voxelpilot_session_connected 1")
}
