package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/manifest-ingest/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	calls []string
	fail  map[string]error
}

func (p *fakeProcessor) ProcessManifest(_ context.Context, bucket, key string) (*pipeline.Result, error) {
	p.calls = append(p.calls, bucket+"/"+key)
	if err := p.fail[key]; err != nil {
		return nil, err
	}
	if !strings.HasSuffix(key, "manifest.json") {
		return &pipeline.Result{Bucket: bucket, Key: key, Skipped: true}, nil
	}
	return &pipeline.Result{RunID: "run-" + key, Bucket: bucket, Key: key, OutputBucket: "processed", Entries: 2, Rows: 3}, nil
}

type fakeRuns struct {
	runs    map[string]*pipeline.ManifestRun
	entries map[int64][]pipeline.EntryJob
	listed  []pipeline.RunStatus
	limit   int
	err     error
}

func (f *fakeRuns) GetRun(_ context.Context, runID string) (*pipeline.ManifestRun, error) {
	return f.runs[runID], f.err
}

func (f *fakeRuns) ListRuns(_ context.Context, statuses []pipeline.RunStatus, limit int) ([]pipeline.ManifestRun, error) {
	f.listed, f.limit = statuses, limit
	if f.err != nil {
		return nil, f.err
	}
	var out []pipeline.ManifestRun
	for _, r := range f.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRuns) ListEntries(_ context.Context, runID int64) ([]pipeline.EntryJob, error) {
	return f.entries[runID], f.err
}

const notification = `{"Records": [
  {"s3": {"bucket": {"name": "incoming"}, "object": {"key": "b1/a.csv"}}},
  {"s3": {"bucket": {"name": "incoming"}, "object": {"key": "b1/manifest.json"}}},
  {"s3": {"bucket": {"name": "incoming"}, "object": {"key": "b2/manifest.json"}}}
]}`

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(NewRouter(nil, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestEventsProcessesManifestsInOrder(t *testing.T) {
	processor := &fakeProcessor{}
	router := NewRouter(&Services{Processor: processor}, nil)

	w := do(router, http.MethodPost, "/api/v1/events", notification)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"incoming/b1/a.csv", "incoming/b1/manifest.json", "incoming/b2/manifest.json"}, processor.calls)

	var body struct {
		Processed []pipeline.Result `json:"processed"`
		Skipped   []struct {
			Key string `json:"key"`
		} `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Processed, 2)
	assert.Equal(t, "b1/manifest.json", body.Processed[0].Key)
	require.Len(t, body.Skipped, 1)
	assert.Equal(t, "b1/a.csv", body.Skipped[0].Key)
}

func TestEventsStopsAtFirstFailure(t *testing.T) {
	processor := &fakeProcessor{fail: map[string]error{"b1/manifest.json": errors.New("process a.csv: boom")}}
	router := NewRouter(&Services{Processor: processor}, nil)

	w := do(router, http.MethodPost, "/api/v1/events", notification)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "process a.csv: boom")
	assert.Len(t, processor.calls, 2)
}

func TestEventsRejectsInvalidPayload(t *testing.T) {
	router := NewRouter(&Services{Processor: &fakeProcessor{}}, nil)
	w := do(router, http.MethodPost, "/api/v1/events", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunsRoutes(t *testing.T) {
	runs := &fakeRuns{
		runs:    map[string]*pipeline.ManifestRun{"r-1": {ID: 1, RunID: "r-1", Status: pipeline.StatusCompleted}},
		entries: map[int64][]pipeline.EntryJob{1: {{FileName: "a.csv", Status: pipeline.EntryStatusCompleted, RowCount: 2}}},
	}
	router := NewRouter(&Services{Runs: runs}, nil)

	w := do(router, http.MethodGet, "/api/v1/runs/r-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"file_name":"a.csv"`)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)

	w = do(router, http.MethodGet, "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/api/v1/runs?status=failed,processing&limit=5000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []pipeline.RunStatus{pipeline.StatusFailed, pipeline.StatusProcessing}, runs.listed)
	assert.Equal(t, 500, runs.limit)

	w = do(router, http.MethodGet, "/api/v1/runs?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(router, http.MethodGet, "/api/v1/runs?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	runs.err = errors.New("db down")
	w = do(router, http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRunsRoutesAbsentWithoutStore(t *testing.T) {
	w := do(NewRouter(&Services{}, nil), http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	router := NewRouter(nil, []string{"https://dash.example, https://ops.example"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dash.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://dash.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"a, b", " ", "*"})
	assert.Equal(t, []string{"a", "b"}, origins)
	assert.True(t, all)
}

func TestRequestIDIsAssignedOrEchoed(t *testing.T) {
	router := NewRouter(&Services{Processor: &fakeProcessor{}}, nil)

	w := do(router, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"Records": []}`))
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}
