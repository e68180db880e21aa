package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-aggregator/internal/cache"
	"token-aggregator/internal/domain"
	"token-aggregator/internal/query"
	"token-aggregator/internal/refresh"
)

type fakeReader struct {
	lastList query.ListParams
	detail   *query.TokenDetail
	getErr   error
	search   []domain.AggregatedRecord
	srchErr  error
}

func (f *fakeReader) List(_ context.Context, p query.ListParams) query.ListResult {
	f.lastList = p
	return query.ListResult{Records: []domain.AggregatedRecord{}, Pagination: query.Pagination{Total: 7}}
}

func (f *fakeReader) Get(context.Context, string) (*query.TokenDetail, error) {
	return f.detail, f.getErr
}

func (f *fakeReader) Search(context.Context, string) ([]domain.AggregatedRecord, error) {
	return f.search, f.srchErr
}

type fakeRefresher struct {
	refreshing atomic.Bool
	calls      atomic.Int32
	ctxErr     atomic.Value
}

func (f *fakeRefresher) Refresh(ctx context.Context) bool {
	f.ctxErr.Store(fmt.Sprint(ctx.Err()))
	f.calls.Add(1)
	return true
}

func (f *fakeRefresher) Status() refresh.Status {
	return refresh.Status{Refreshing: f.refreshing.Load(), Runs: 3}
}

type fixedSnapshots struct{ snap *domain.Snapshot }

func (f fixedSnapshots) Current() *domain.Snapshot { return f.snap }

type fixedClients int

func (f fixedClients) ClientCount() int { return int(f) }

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestListTokens_ParsesQuery(t *testing.T) {
	reader := &fakeReader{}
	srv := NewServer(Options{Reader: reader})

	w := do(t, srv.Handler(), http.MethodGet, "/api/tokens?limit=5&cursor=abc&sortBy=liquidity&period=1h&minVolume=12.5&minLiquidity=-3")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 5, reader.lastList.Limit)
	assert.Equal(t, "abc", reader.lastList.Cursor)
	assert.Equal(t, "liquidity", reader.lastList.SortBy)
	assert.Equal(t, "1h", reader.lastList.Period)
	require.NotNil(t, reader.lastList.MinVolume)
	assert.Equal(t, 12.5, *reader.lastList.MinVolume)
	assert.Nil(t, reader.lastList.MinLiquidity)

	body := decode(t, w)
	pagination := body["pagination"].(map[string]any)
	assert.Equal(t, 7.0, pagination["total"])
	assert.Nil(t, pagination["nextCursor"])
}

func TestSearchTokens(t *testing.T) {
	reader := &fakeReader{search: []domain.AggregatedRecord{{SourceRecord: domain.SourceRecord{Address: "A"}}}}
	srv := NewServer(Options{Reader: reader})

	w := do(t, srv.Handler(), http.MethodGet, "/api/tokens/search?q=bonk")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])

	reader.srchErr = query.ErrQueryTooShort
	w = do(t, srv.Handler(), http.MethodGet, "/api/tokens/search?q=b")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetToken_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"found", nil, http.StatusOK},
		{"invalid", query.ErrInvalidAddress, http.StatusBadRequest},
		{"missing", query.ErrNotFound, http.StatusNotFound},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{getErr: tt.err}
			if tt.err == nil {
				reader.detail = &query.TokenDetail{Record: domain.AggregatedRecord{SourceRecord: domain.SourceRecord{Address: "X"}}}
			}
			srv := NewServer(Options{Reader: reader})

			w := do(t, srv.Handler(), http.MethodGet, "/api/tokens/X")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestTriggerRefresh(t *testing.T) {
	ref := &fakeRefresher{}
	srv := NewServer(Options{Reader: &fakeReader{}, Refresher: ref})

	w := do(t, srv.Handler(), http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return ref.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ref.refreshing.Store(true)
	w = do(t, srv.Handler(), http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestHealthAndStatus(t *testing.T) {
	srv := NewServer(Options{
		Reader:    &fakeReader{},
		Refresher: &fakeRefresher{},
		Snapshots: fixedSnapshots{snap: domain.NewSnapshot(make([]domain.AggregatedRecord, 4), 99)},
		Clients:   fixedClients(2),
	})

	w := do(t, srv.Handler(), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = do(t, srv.Handler(), http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 2.0, body["clients"])
	snap := body["snapshot"].(map[string]any)
	assert.Equal(t, 4.0, snap["records"])
	assert.Equal(t, 99.0, snap["createdAt"])
	assert.Equal(t, 3.0, body["refresh"].(map[string]any)["runs"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(Options{Reader: &fakeReader{}, MetricsEnabled: true})

	do(t, srv.Handler(), http.MethodGet, "/health")
	w := do(t, srv.Handler(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "token_aggregator_http_requests_total")

	w = do(t, NewServer(Options{Reader: &fakeReader{}}).Handler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	srv := NewServer(Options{
		Reader:    &fakeReader{},
		Cache:     cache.NewMemory(),
		RateLimit: RateLimit{Enabled: true, Requests: 2, Window: time.Minute},
	})
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		w := do(t, h, http.MethodGet, "/api/tokens")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, h, http.MethodGet, "/api/tokens")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// health checks are not limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)
}

type failingCache struct{ cache.Cache }

func (failingCache) IncrementWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	srv := NewServer(Options{
		Reader:    &fakeReader{},
		Cache:     failingCache{},
		RateLimit: RateLimit{Enabled: true, Requests: 1, Window: time.Minute},
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/api/tokens").Code)
	}
}

func TestTriggerRefresh_SurvivesServerShutdown(t *testing.T) {
	ref := &fakeRefresher{}
	srv := NewServer(Options{Reader: &fakeReader{}, Refresher: ref})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv.baseCtx = ctx

	w := do(t, srv.Handler(), http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return ref.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "<nil>", ref.ctxErr.Load())
}
