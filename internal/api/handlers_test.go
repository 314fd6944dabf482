package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/signalhub/keyword-radar/internal/models"
	"github.com/signalhub/keyword-radar/internal/scheduler"
	"github.com/signalhub/keyword-radar/internal/storage"
)

// MockScheduler is a mock implementation of the SchedulerControl interface
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockScheduler) Stop() {
	m.Called()
}

func (m *MockScheduler) RunNow() {
	m.Called()
}

func (m *MockScheduler) Status(ctx context.Context) (*scheduler.Status, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.Status), args.Error(1)
}

func (m *MockScheduler) AddKeyword(ctx context.Context, term string, intervalHours int, autoFetch bool, channels []string) (*models.Keyword, error) {
	args := m.Called(ctx, term, intervalHours, autoFetch, channels)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Keyword), args.Error(1)
}

func (m *MockScheduler) RemoveKeyword(ctx context.Context, term string) error {
	args := m.Called(ctx, term)
	return args.Error(0)
}

func (m *MockScheduler) UpdateInterval(ctx context.Context, term string, intervalHours int) error {
	args := m.Called(ctx, term, intervalHours)
	return args.Error(0)
}

func (m *MockScheduler) ListKeywords(ctx context.Context) ([]models.Keyword, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Keyword), args.Error(1)
}

func (m *MockScheduler) RunCycle(ctx context.Context, term string, opts scheduler.CycleOptions) (*models.FetchResult, error) {
	args := m.Called(ctx, term, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FetchResult), args.Error(1)
}

// MockItemLister is a mock implementation of the ItemLister interface
type MockItemLister struct {
	mock.Mock
}

func (m *MockItemLister) List(ctx context.Context, opts storage.ListOptions) ([]models.FeedItem, int, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.FeedItem), args.Int(1), args.Error(2)
}

// MockTrendReader is a mock implementation of the TrendReader interface
type MockTrendReader struct {
	mock.Mock
}

func (m *MockTrendReader) TrendingKeywords(ctx context.Context, limit int) ([]models.Keyword, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Keyword), args.Error(1)
}

// MockStatsReader is a mock implementation of the StatsReader interface
type MockStatsReader struct {
	mock.Mock
}

func (m *MockStatsReader) Stats(ctx context.Context, term string) (*models.KeywordStats, error) {
	args := m.Called(ctx, term)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeywordStats), args.Error(1)
}

type testEnv struct {
	scheduler *MockScheduler
	items     *MockItemLister
	trends    *MockTrendReader
	stats     *MockStatsReader
	router    http.Handler
}

func newTestEnv() *testEnv {
	env := &testEnv{
		scheduler: &MockScheduler{},
		items:     &MockItemLister{},
		trends:    &MockTrendReader{},
		stats:     &MockStatsReader{},
	}
	env.router = NewHandler(env.scheduler, env.items, env.trends, env.stats).Router()
	return env
}

func (e *testEnv) do(method, path, role string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set(RoleHeader, role)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv()
	rec := env.do("GET", "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestMutatingEndpointsRequireElevatedRole(t *testing.T) {
	tests := []struct {
		name string
		role string
		want int
	}{
		{name: "Missing role header", role: "", want: http.StatusForbidden},
		{name: "Viewer role", role: "viewer", want: http.StatusForbidden},
		{name: "Moderator role", role: "moderator", want: http.StatusOK},
		{name: "Admin role", role: "admin", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.scheduler.On("RunNow").Return()

			rec := env.do("POST", "/api/scheduler", tt.role, map[string]string{"action": "run-now"})
			assert.Equal(t, tt.want, rec.Code)

			if tt.want == http.StatusForbidden {
				// The guard fires before any scheduler work happens
				env.scheduler.AssertNotCalled(t, "RunNow")
			}
		})
	}
}

func TestFetchRequiresElevatedRole(t *testing.T) {
	env := newTestEnv()
	rec := env.do("POST", "/api/fetch", "", map[string]string{"keyword": "kubernetes"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	env.scheduler.AssertNotCalled(t, "RunCycle")
}

func TestSchedulerAction_AddKeyword(t *testing.T) {
	env := newTestEnv()
	env.scheduler.On("AddKeyword", mock.Anything, "kubernetes", 48, true, []string(nil)).
		Return(&models.Keyword{Term: "kubernetes", FetchIntervalHours: 48}, nil)

	rec := env.do("POST", "/api/scheduler", "admin", map[string]interface{}{
		"action":         "add-keyword",
		"keyword":        "kubernetes",
		"fetch_interval": 48,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	env.scheduler.AssertExpectations(t)
}

func TestSchedulerAction_AddKeywordRequiresKeyword(t *testing.T) {
	env := newTestEnv()
	rec := env.do("POST", "/api/scheduler", "admin", map[string]string{"action": "add-keyword"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env.scheduler.AssertNotCalled(t, "AddKeyword")
}

func TestSchedulerAction_UpdateIntervalRejectsOutOfRange(t *testing.T) {
	for _, hours := range []int{0, 200} {
		t.Run(fmt.Sprintf("%d hours", hours), func(t *testing.T) {
			env := newTestEnv()
			env.scheduler.On("UpdateInterval", mock.Anything, "kubernetes", hours).
				Return(scheduler.ErrInvalidInterval)

			rec := env.do("POST", "/api/scheduler", "moderator", map[string]interface{}{
				"action":         "update-interval",
				"keyword":        "kubernetes",
				"fetch_interval": hours,
			})

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSchedulerAction_RemoveUnknownKeyword(t *testing.T) {
	env := newTestEnv()
	env.scheduler.On("RemoveKeyword", mock.Anything, "ghost").Return(storage.ErrKeywordNotFound)

	rec := env.do("POST", "/api/scheduler", "admin", map[string]string{
		"action":  "remove-keyword",
		"keyword": "ghost",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchedulerAction_UnknownAction(t *testing.T) {
	env := newTestEnv()
	rec := env.do("POST", "/api/scheduler", "admin", map[string]string{"action": "reboot"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetch(t *testing.T) {
	env := newTestEnv()
	env.scheduler.On("RunCycle", mock.Anything, "kubernetes", scheduler.CycleOptions{
		MaxPosts:           10,
		MaxCommentsPerPost: 5,
		IncludeComments:    true,
	}).Return(&models.FetchResult{Keyword: "kubernetes", TotalPosts: 10, TotalStored: 10, Errors: []string{}}, nil)

	rec := env.do("POST", "/api/fetch", "moderator", map[string]interface{}{
		"keyword":               "kubernetes",
		"max_posts":             10,
		"max_comments_per_post": 5,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "kubernetes", body["keyword"])
	assert.Equal(t, float64(10), body["total_posts"])
}

func TestFetch_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "Missing keyword", body: map[string]interface{}{"max_posts": 10}},
		{name: "Blank keyword", body: map[string]interface{}{"keyword": "   "}},
		{name: "Too many posts", body: map[string]interface{}{"keyword": "k", "max_posts": 101}},
		{name: "Too many comments", body: map[string]interface{}{"keyword": "k", "max_comments_per_post": 51}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			rec := env.do("POST", "/api/fetch", "admin", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			env.scheduler.AssertNotCalled(t, "RunCycle")
		})
	}
}

func TestFetch_CycleErrorsReturnedInPayload(t *testing.T) {
	env := newTestEnv()
	env.scheduler.On("RunCycle", mock.Anything, "kubernetes", mock.Anything).
		Return(&models.FetchResult{
			Keyword: "kubernetes",
			Errors:  []string{"no channel reachable for keyword 'kubernetes'"},
		}, nil)

	rec := env.do("POST", "/api/fetch", "admin", map[string]interface{}{"keyword": "kubernetes"})

	// Fatal cycle outcomes ride inside the result, the request itself succeeds
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Len(t, body["errors"], 1)
}

func TestFetch_BusyKeywordConflicts(t *testing.T) {
	env := newTestEnv()
	env.scheduler.On("RunCycle", mock.Anything, "kubernetes", mock.Anything).
		Return(nil, storage.ErrKeywordBusy)

	rec := env.do("POST", "/api/fetch", "admin", map[string]interface{}{"keyword": "kubernetes"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestData(t *testing.T) {
	env := newTestEnv()
	env.items.On("List", mock.Anything, storage.ListOptions{
		Keyword:  "kubernetes",
		Kind:     models.KindPost,
		Page:     1,
		PageSize: 20,
	}).Return([]models.FeedItem{{ExternalID: "t3_1", Kind: models.KindPost}}, 1, nil)

	rec := env.do("GET", "/api/data?keyword=kubernetes&type=posts", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["total"])
	env.items.AssertExpectations(t)
}

func TestData_InvalidType(t *testing.T) {
	env := newTestEnv()
	rec := env.do("GET", "/api/data?type=users", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env.items.AssertNotCalled(t, "List")
}

func TestData_DefaultsPagination(t *testing.T) {
	env := newTestEnv()
	env.items.On("List", mock.Anything, mock.MatchedBy(func(opts storage.ListOptions) bool {
		return opts.Page == 1 && opts.PageSize == 20
	})).Return([]models.FeedItem{}, 0, nil)

	rec := env.do("GET", "/api/data?page=-3&page_size=abc", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	env.items.AssertExpectations(t)
}

func TestTrending(t *testing.T) {
	env := newTestEnv()
	env.trends.On("TrendingKeywords", mock.Anything, 10).
		Return([]models.Keyword{{Term: "kubernetes", Trending: true}}, nil)

	rec := env.do("GET", "/api/trending", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestStatistics(t *testing.T) {
	env := newTestEnv()
	env.stats.On("Stats", mock.Anything, "kubernetes").
		Return(&models.KeywordStats{Keyword: "kubernetes", Volume: 12}, nil)

	rec := env.do("GET", "/api/statistics?keyword=kubernetes", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(12), decodeBody(t, rec)["volume"])
}

func TestStatistics_UnknownKeyword(t *testing.T) {
	env := newTestEnv()
	env.stats.On("Stats", mock.Anything, "ghost").Return(nil, storage.ErrKeywordNotFound)

	rec := env.do("GET", "/api/statistics?keyword=ghost", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatistics_RequiresKeyword(t *testing.T) {
	env := newTestEnv()
	rec := env.do("GET", "/api/statistics", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env.stats.AssertNotCalled(t, "Stats")
}
