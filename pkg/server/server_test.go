package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/duynguyendang/vultester/internal/manager"
	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/duynguyendang/vultester/pkg/export"
	"github.com/duynguyendang/vultester/pkg/history"
	"github.com/duynguyendang/vultester/pkg/kb"
	"github.com/duynguyendang/vultester/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNarrator struct{}

func (stubNarrator) Explain(_ context.Context, res *engine.Result, _ []string) (string, error) {
	return "status is " + string(res.OverallStatus), nil
}

func newTestServer(t *testing.T) (*Server, *service.AnalysisService) {
	t.Helper()
	svc := service.NewAnalysisService(kb.Default(), kb.DefaultCatalog(), manager.NewReportCache(8), nil)
	return NewServer(svc, nil), svc
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	req, err := http.NewRequest(method, path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	h := decode[service.Health](t, w)
	assert.Equal(t, 50, h.Rules)
	assert.Len(t, h.Methods, 3)
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestAnalyze(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/analyze", `{"facts": ["port_22_open", "password_auth_enabled"], "method": "forward"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	for _, key := range []string{"method", "method_name", "overall_status", "status_message", "vulnerabilities",
		"total_rules_fired", "fired_rules", "patches", "inference_trace", "final_facts", "run_id"} {
		assert.Contains(t, body, key)
	}
	assert.Equal(t, "DANGEROUS", body["overall_status"])

	vulns := body["vulnerabilities"].(map[string]any)
	for _, bucket := range []string{"critical", "dangerous", "warning", "info"} {
		assert.NotNil(t, vulns[bucket], bucket)
	}
}

func TestAnalyzeDefaultsToForward(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/analyze", `{"facts": ["port_23_open"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[engine.Result](t, w)
	assert.Equal(t, engine.Forward, res.Method)
	assert.Equal(t, engine.StatusCritical, res.OverallStatus)
	require.Len(t, res.Patches, 1)
	assert.Contains(t, res.Patches[0].Recommendation, "Disable Telnet")
}

func TestAnalyzeWithGraph(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/analyze?graph=true", `{"facts": ["port_23_open"], "method": "mixed"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Result engine.Result  `json:"result"`
		Graph  export.D3Graph `json:"graph"`
	}](t, w)
	assert.Equal(t, engine.Mixed, body.Result.Method)
	require.Len(t, body.Graph.Links, 1)
	assert.Equal(t, "PORT-02", body.Graph.Links[0].Relation)
}

func TestAnalyzeErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty facts", `{"facts": [], "method": "forward"}`, http.StatusBadRequest},
		{"missing facts", `{"method": "backward"}`, http.StatusBadRequest},
		{"blank fact", `{"facts": ["port_22_open", ""]}`, http.StatusBadRequest},
		{"unknown method", `{"facts": ["port_22_open"], "method": "sideways"}`, http.StatusBadRequest},
		{"method case", `{"facts": ["port_22_open"], "method": "FORWARD"}`, http.StatusBadRequest},
		{"bad json", `{"facts": [`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/analyze", tt.body)
			assert.Equal(t, tt.code, w.Code)

			body := decode[map[string]string](t, w)
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["details"])
		})
	}
}

func TestRules(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[service.RuleList](t, w)
	assert.Equal(t, 50, list.Count)

	w = do(t, srv, http.MethodGet, "/api/rules?category=ssl", "")
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[service.RuleList](t, w)
	require.NotZero(t, list.Count)
	assert.Equal(t, list.Count, len(list.Rules))
	for _, r := range list.Rules {
		assert.Equal(t, "SSL", r.Category())
	}
}

func TestRule(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/rules/PORT-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[service.RuleDetail](t, w)
	assert.Equal(t, "ssh_brute_force_risk", detail.Rule.Consequence)
	assert.NotEmpty(t, detail.Recommendation)

	w = do(t, srv, http.MethodGet, "/api/rules/PORT-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "Resource not found", body["error"])
	assert.Contains(t, body["details"], "PORT-01")
}

func TestFactsAndGraph(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/facts", "")
	require.Equal(t, http.StatusOK, w.Code)
	facts := decode[service.FactList](t, w)
	assert.NotZero(t, facts.Count)

	w = do(t, srv, http.MethodGet, "/api/graph", "")
	require.Equal(t, http.StatusOK, w.Code)
	graph := decode[export.D3Graph](t, w)
	assert.NotEmpty(t, graph.Nodes)
	assert.NotEmpty(t, graph.Links)
}

func TestPath(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/path", `{"facts": ["port_23_open"], "goal": "telnet_vulnerability"}`)
	require.Equal(t, http.StatusOK, w.Code)
	graph := decode[export.D3Graph](t, w)
	require.Len(t, graph.Links, 1)
	assert.Equal(t, "PORT-02", graph.Links[0].Relation)

	w = do(t, srv, http.MethodPost, "/api/path", `{"facts": [], "goal": "telnet_vulnerability"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/api/path", `{"facts": ["port_23_open"], "goal": "made_up_goal"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExplain(t *testing.T) {
	srv, svc := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/explain", `{"facts": ["port_23_open"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	svc.SetNarrator(stubNarrator{})
	w = do(t, srv, http.MethodPost, "/api/explain", `{"facts": ["port_23_open"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "status is CRITICAL", body["explanation"])
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	for range 2 {
		w := do(t, srv, http.MethodPost, "/api/analyze", `{"facts": ["port_23_open"]}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	text := w.Body.String()
	assert.Contains(t, text, `vultester_evaluations_total{method="forward",status="CRITICAL"} 2`)
	assert.Contains(t, text, "vultester_cache_hits_total 1")
	assert.Contains(t, text, `vultester_http_request_duration_seconds_count{code="200",route="/api/analyze"} 2`)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/api/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-done)
	client.CloseIdleConnections()
}

type memRuns struct {
	recs []history.Record
}

func (m *memRuns) Save(rec history.Record) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memRuns) Get(runID string) (history.Record, error) {
	for _, r := range m.recs {
		if r.RunID == runID {
			return r, nil
		}
	}
	return history.Record{}, fmt.Errorf("%w: run %q", errors.ErrNotFound, runID)
}

func (m *memRuns) List(limit int) ([]history.Summary, error) {
	out := []history.Summary{}
	for i := len(m.recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history.Summary{RunID: m.recs[i].RunID, Method: m.recs[i].Result.Method})
	}
	return out, nil
}

func TestRuns(t *testing.T) {
	srv, svc := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	svc.SetRunStore(&memRuns{})
	w = do(t, srv, http.MethodPost, "/api/analyze", `{"facts":["port_23_open"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[engine.Result](t, w)
	w = do(t, srv, http.MethodPost, "/api/analyze", `{"facts":["port_22_open"],"method":"mixed"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/api/runs?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Runs  []history.Summary `json:"runs"`
		Count int               `json:"count"`
	}](t, w)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, engine.Mixed, list.Runs[0].Method)

	w = do(t, srv, http.MethodGet, "/api/runs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodGet, "/api/runs/"+first.RunID, "")
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[history.Record](t, w)
	assert.Equal(t, []string{"port_23_open"}, rec.Facts)
	assert.Equal(t, engine.StatusCritical, rec.Result.OverallStatus)

	w = do(t, srv, http.MethodGet, "/api/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
