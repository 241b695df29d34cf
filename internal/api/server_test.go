package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/itemreviewed/internal/claimreview"
	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type stubExtractor struct {
	builder *claimreview.Builder
	pages   map[string]*types.ClaimReviewRecord
	err     error
	lastOpt claimreview.PageOptions
}

func (s *stubExtractor) ParsePage(ctx context.Context, pageURL string, opts claimreview.PageOptions) (*types.ClaimReviewRecord, error) {
	s.lastOpt = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.pages[pageURL], nil
}

func (s *stubExtractor) BuildItem(ctx context.Context, item types.FeedItem, translate bool) *types.ClaimReviewRecord {
	return s.builder.Build(ctx, item, translate)
}

type stubRunner struct {
	mu   sync.Mutex
	runs [][]string
}

func (r *stubRunner) RunPages(ctx context.Context, urls []string) ([]*types.ClaimReviewRecord, error) {
	r.mu.Lock()
	r.runs = append(r.runs, urls)
	r.mu.Unlock()
	out := make([]*types.ClaimReviewRecord, 0, len(urls))
	for _, u := range urls {
		out = append(out, &types.ClaimReviewRecord{FactcheckURL: u, ItemsReviewed: []string{"https://social.example.net/p"}})
	}
	return out, nil
}

func (r *stubRunner) StatsSnapshot() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{"processed": len(r.runs)}
}

func newTestServer(t *testing.T, ex *stubExtractor, runner BatchRunner) *Server {
	t.Helper()
	if ex.builder == nil {
		ex.builder = claimreview.NewBuilder(nil, nil, testLogger)
	}
	return NewServer(config.DefaultConfig(), ex, runner, nil, testLogger)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, nil)
	rec := do(t, s, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestParsePage(t *testing.T) {
	ex := &stubExtractor{pages: map[string]*types.ClaimReviewRecord{
		"https://factcheck.example/a": {
			FactcheckURL:  "https://factcheck.example/a",
			ClaimReviewed: types.StringPtr("Ça <b>va</b>"),
			ItemsReviewed: []string{"https://social.example.net/p"},
		},
	}}
	s := newTestServer(t, ex, nil)

	rec := do(t, s, http.MethodPost, "/api/pages", `{"url":"https://factcheck.example/a","locate_links":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"claim_reviewed":"Ça <b>va</b>"`)
	assert.False(t, ex.lastOpt.LocateLinks)

	rec = do(t, s, http.MethodPost, "/api/pages", `{"url":"https://factcheck.example/none"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.True(t, ex.lastOpt.LocateLinks, "defaults come from scrape config")

	rec = do(t, s, http.MethodPost, "/api/pages", `{"url":"ftp://factcheck.example/a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParsePageFetchErrors(t *testing.T) {
	ex := &stubExtractor{err: &types.FetchError{URL: "https://factcheck.example/a", StatusCode: 404, Kind: types.KindTerminal}}
	s := newTestServer(t, ex, nil)

	rec := do(t, s, http.MethodPost, "/api/pages", `{"url":"https://factcheck.example/a"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ex.err = &types.FetchError{URL: "https://factcheck.example/a", Kind: types.KindTransport}
	rec = do(t, s, http.MethodPost, "/api/pages", `{"url":"https://factcheck.example/a"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBuildItems(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, nil)

	body := `[
		{"url":"https://factcheck.example/a","claimReviewed":"X is false","itemReviewed":{"url":"https://other.example/story"}},
		{"url":"https://factcheck.example/b"}
	]`
	rec := do(t, s, http.MethodPost, "/api/items", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "https://factcheck.example/a", out[0]["factcheck_url"])
	assert.Equal(t, []any{"https://other.example/story"}, out[0]["items_reviewed"])

	rec = do(t, s, http.MethodPost, "/api/items", `{"url":"https://factcheck.example/a","itemReviewed":{"url":"https://factcheck.example/related"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var same []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &same))
	require.Len(t, same, 1)
	assert.Nil(t, same[0]["items_reviewed"])
}

func TestResolve(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, nil)

	rec := do(t, s, http.MethodPost, "/api/resolve", `{
		"factcheck_url":"https://www.factcheck.example/a",
		"itemReviewed":{"appearance":[{"url":"https://x.example/1"},{"url":"https://blog.factcheck.example/2"}]}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items_reviewed":["https://x.example/1"]`)

	rec = do(t, s, http.MethodPost, "/api/resolve", `{"itemReviewed":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobs(t *testing.T) {
	runner := &stubRunner{}
	s := newTestServer(t, &stubExtractor{}, runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.work(ctx)

	rec := do(t, s, http.MethodPost, "/api/jobs", `{"urls":["https://factcheck.example/a","https://factcheck.example/b"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "job-1", created.ID)

	require.Eventually(t, func() bool {
		job := s.snapshot(created.ID)
		return job != nil && job.Status == JobDone
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, s, http.MethodGet, "/api/jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var done Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.Len(t, done.Records, 2)
	assert.NotNil(t, done.FinishedAt)

	rec = do(t, s, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"records"`)

	rec = do(t, s, http.MethodGet, "/api/jobs/job-9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processed":1`)
}

func TestJobValidation(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, nil)
	rec := do(t, s, http.MethodPost, "/api/jobs", `{"urls":["https://factcheck.example/a"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s = newTestServer(t, &stubExtractor{}, &stubRunner{})
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/jobs", `{"urls":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/jobs", `{"urls":["nope"]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/jobs", `not json`).Code)
}
