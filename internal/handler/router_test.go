package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/newsroom/internal/middleware"
	"github.com/hitoshi/newsroom/internal/model"
)

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error { return m.err }

func newTestRouter(t *testing.T, deps *RouterDeps) (http.Handler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	deps.Logger = newTestLogger(&buf)
	if deps.PointsService == nil {
		deps.PointsService = &mockPointsService{}
	}
	if deps.MessageService == nil {
		deps.MessageService = &mockMessageService{}
	}
	if deps.ArticleService == nil {
		deps.ArticleService = &mockArticleService{}
	}
	return NewRouter(deps), &buf
}

// TestNewRouter_Routes は全エンドポイントがルーティングされることを検証する。
func TestNewRouter_Routes(t *testing.T) {
	router, _ := newTestRouter(t, &RouterDeps{
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("newsroom_points_awarded_total 0\n"))
		}),
	})

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/users/u1/points", "", http.StatusOK},
		{http.MethodGet, "/api/users/u1/points/transactions", "", http.StatusOK},
		{http.MethodPost, "/api/users/u1/points/award", `{"amount": 1}`, http.StatusOK},
		{http.MethodPost, "/api/users/u1/points/spend", `{"amount": 1}`, http.StatusOK},
		{http.MethodGet, "/api/users/u1/points/conversion?points=100000", "", http.StatusOK},
		{http.MethodPost, "/api/users/u1/points/convert", `{"points": 100000}`, http.StatusOK},
		{http.MethodPost, "/api/conversations/c1/messages", `{"content": "hi"}`, http.StatusAccepted},
		{http.MethodGet, "/api/conversations/c1/messages", "", http.StatusOK},
		{http.MethodGet, "/api/messages/failed", "", http.StatusOK},
		{http.MethodPost, "/api/messages/m1/retry", "", http.StatusAccepted},
		{http.MethodDelete, "/api/messages/m1", "", http.StatusNoContent},
		{http.MethodGet, "/api/articles?category=all", "", http.StatusOK},
		{http.MethodGet, "/api/articles/categories", "", http.StatusOK},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

// TestNewRouter_URLParamsReachHandlers はURLパラメータがハンドラーに渡ることを検証する。
func TestNewRouter_URLParamsReachHandlers(t *testing.T) {
	var gotUser, gotConv string
	router, _ := newTestRouter(t, &RouterDeps{
		PointsService: &mockPointsService{
			balanceFn: func(ctx context.Context, userID string) (*model.PointsAccount, error) {
				gotUser = userID
				return &model.PointsAccount{UserID: userID}, nil
			},
		},
		MessageService: &mockMessageService{
			queueMessageFn: func(ctx context.Context, payload model.NewMessage) (string, error) {
				gotConv = payload.ConversationID
				return "m1", nil
			},
		},
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/users/alice/points", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/conversations/room-7/messages", strings.NewReader(`{"content":"x"}`)))

	if gotUser != "alice" {
		t.Errorf("userID = %q, want alice", gotUser)
	}
	if gotConv != "room-7" {
		t.Errorf("conversationID = %q, want room-7", gotConv)
	}
}

func TestNewRouter_HealthUnavailable(t *testing.T) {
	router, _ := newTestRouter(t, &RouterDeps{
		HealthChecker: &mockHealthChecker{err: errors.New("db down")},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// TestNewRouter_RateLimitAppliesToAPIOnly はレート制限が/api配下だけに効くことを検証する。
func TestNewRouter_RateLimitAppliesToAPIOnly(t *testing.T) {
	var buf bytes.Buffer
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: 0.01, Burst: 1}, newTestLogger(&buf))
	defer rl.Stop()

	router, _ := newTestRouter(t, &RouterDeps{RateLimiter: rl})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/articles", nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/articles", nil))
	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Errorf("statuses = %d, %d, want 200, 429", first.Code, second.Code)
	}
	if health.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", health.Code)
	}
}

func TestNewRouter_RecoversPanics(t *testing.T) {
	router, logs := newTestRouter(t, &RouterDeps{
		ArticleService: &mockArticleService{
			articlesFn: func(context.Context, string) ([]model.Article, error) {
				panic("unexpected nil")
			},
		},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/articles", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(logs.String(), "panic recovered") {
		t.Errorf("panicがログに記録されていない: %s", logs.String())
	}
}
