package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/pipeflow/pkg/cache"
	"github.com/matzehuels/pipeflow/pkg/config"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/fitting/fittingtest"
	"github.com/matzehuels/pipeflow/pkg/netio"
	"github.com/matzehuels/pipeflow/pkg/pipeline"
	"github.com/matzehuels/pipeflow/pkg/store"
)

func newTestServer(t *testing.T, withStore bool) http.Handler {
	t.Helper()
	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	logger := log.New(&bytes.Buffer{})
	cfg := config.Default()
	cfg.Pressure.TrunkStaticPressure = 300000

	s := &Server{
		Runner: pipeline.NewRunner(fc, nil, logger),
		Config: cfg,
		Logger: logger,
	}
	if withStore {
		db, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		s.Store = db
	}
	return s.Routes()
}

func encode(t *testing.T, tree *fitting.Tree, f netio.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, netio.Write(tree, &buf, f))
	return buf.Bytes()
}

func post(h http.Handler, target, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	rec := get(newTestServer(t, false), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestSolve(t *testing.T) {
	h := newTestServer(t, false)
	body := encode(t, fittingtest.Line(0.05, 10, 0.004, 1e-5), netio.FormatJSON)

	rec := post(h, "/api/v1/solve", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp solveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Result.Converged)
	assert.NotEmpty(t, resp.Result.RunID)
	assert.False(t, resp.Cached)
	require.NotNil(t, resp.Network)
	assert.NotEmpty(t, resp.Network.Components)

	rec = post(h, "/api/v1/solve", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var again solveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.True(t, again.Cached)
	assert.Equal(t, resp.Result.RunID, again.Result.RunID)
}

func TestSolveYAML(t *testing.T) {
	h := newTestServer(t, false)
	body := encode(t, fittingtest.Sample(), netio.FormatYAML)

	rec := post(h, "/api/v1/solve", "application/yaml; charset=utf-8", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp solveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Result.Stats.Leaves)
}

func TestSolveBadRequests(t *testing.T) {
	h := newTestServer(t, false)
	line := encode(t, fittingtest.Line(0.05, 10, 0.004, 0), netio.FormatJSON)

	tests := []struct {
		name        string
		target      string
		contentType string
		body        []byte
		wantCode    string
	}{
		{"empty body", "/api/v1/solve", "application/json", nil, "INVALID_INPUT"},
		{"unknown content type", "/api/v1/solve", "text/plain", line, "INVALID_FORMAT"},
		{"malformed json", "/api/v1/solve", "application/json", []byte(`{"components": [`), "INVALID_FORMAT"},
		{"bad area", "/api/v1/solve?area=0,0;1", "application/json", line, "INVALID_INPUT"},
		{"too few vertices", "/api/v1/solve?area=0,0;1,0", "application/json", line, "INVALID_CONFIG"},
		{"bad max_iter", "/api/v1/solve?max_iter=x", "application/json", line, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(h, tt.target, tt.contentType, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error.Code)
		})
	}
}

func TestSolveReportsNetworkProblems(t *testing.T) {
	h := newTestServer(t, false)
	body := encode(t, fittingtest.WithStrayTerminal(), netio.FormatJSON)

	rec := post(h, "/api/v1/solve", "", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp solveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Result.Iterations)
	require.Len(t, resp.Result.Errors, 1)
	assert.Equal(t, "MULTIPLE_TRUNKS", string(resp.Result.Errors[0].Code))
}

func TestRender(t *testing.T) {
	h := newTestServer(t, false)
	body := encode(t, fittingtest.Sample(), netio.FormatJSON)

	rec := post(h, "/api/v1/render?format=dot", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/vnd.graphviz", rec.Header().Get("Content-Type"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "digraph")

	rec = post(h, "/api/v1/render?format=gif", "application/json", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenderSolved(t *testing.T) {
	h := newTestServer(t, false)
	body := encode(t, fittingtest.Line(0.05, 10, 0.004, 1e-5), netio.FormatJSON)

	rec := post(h, "/api/v1/render?format=dot&solve=true", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "kPa")
}

func TestRuns(t *testing.T) {
	h := newTestServer(t, true)
	body := encode(t, fittingtest.Line(0.05, 10, 0.004, 1e-5), netio.FormatJSON)

	rec := post(h, "/api/v1/solve?name=line", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var solved solveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &solved))

	rec = get(h, "/api/v1/runs?network=line")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Runs []runJSON `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, solved.Result.RunID, list.Runs[0].ID)
	assert.True(t, list.Runs[0].Converged)

	rec = get(h, "/api/v1/runs/"+solved.Result.RunID[:8])
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run runJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, solved.Result.RunID, run.ID)
	require.Len(t, run.Leaves, 1)
	assert.Equal(t, fittingtest.Head1, run.Leaves[0].Leaf)

	rec = get(h, "/api/v1/runs/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)

	rec = get(h, "/api/v1/runs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunsWithoutStore(t *testing.T) {
	h := newTestServer(t, false)
	rec := get(h, "/api/v1/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.Contains(decodeError(t, rec).Error.Message, "disabled"))
}

func TestBodyFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    netio.Format
		wantErr bool
	}{
		{"", netio.FormatJSON, false},
		{"application/json", netio.FormatJSON, false},
		{"application/x-yaml", netio.FormatYAML, false},
		{"text/yaml; charset=utf-8", netio.FormatYAML, false},
		{"application/xml", "", true},
		{";;", "", true},
	}
	for _, tt := range tests {
		got, err := bodyFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
