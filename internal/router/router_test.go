package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"port42/internal/auth"
	"port42/internal/db"
	"port42/internal/handlers"
	"port42/internal/logger"
	"port42/internal/middleware"
	"port42/internal/models"
	"port42/internal/realtime"
	"port42/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	engine *gin.Engine
	hub    *realtime.Hub
	db     *gorm.DB
	// shutdown 模拟进程收到退出信号
	shutdown context.CancelFunc
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()

	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "port42.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(database, log))

	signer, err := auth.NewSigner("test-secret", time.Hour)
	require.NoError(t, err)
	threads, err := services.NewThreadCache(64, time.Minute)
	require.NoError(t, err)

	hub := realtime.NewHub(log, 16)
	votes := services.NewVoteService(database, log, hub, nil, threads)
	comments := services.NewCommentService(database, log, hub, votes, nil, threads)
	resources := services.NewResourceService(database, log, votes, nil, nil)
	users := services.NewUserService(database, log)
	notifications := services.NewNotificationService(database, log)

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	base, shutdown := context.WithCancel(context.Background())
	t.Cleanup(shutdown)

	engine := New(Options{
		SessionSecret:      "session-secret",
		RequestTimeout:     5 * time.Second,
		RateLimitPerMinute: 10000,
		RateLimitBurst:     1000,
	}, log, middleware.NewAuthenticator(database, signer, log), Handlers{
		Auth:         handlers.NewAuthHandler(users, notifications, signer, log),
		Community:    handlers.NewCommunityHandler(services.NewCommunityService(database, log)),
		Resource:     handlers.NewResourceHandler(resources, comments),
		Comment:      handlers.NewCommentHandler(comments),
		Vote:         handlers.NewVoteHandler(votes),
		Notification: handlers.NewNotificationHandler(notifications),
		Realtime:     handlers.NewRealtimeHandler(base, hub, log),
		Health:       handlers.NewHealthHandler(database),
	}, stop)
	return &testServer{engine: engine, hub: hub, db: database, shutdown: shutdown}
}

type requestOption func(*http.Request)

func withToken(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookies(cookies []*http.Cookie) requestOption {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, opts ...requestOption) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func (s *testServer) register(t *testing.T, username string) string {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (s *testServer) firstCommunity(t *testing.T) (uint, string) {
	t.Helper()
	rec, env := s.do(t, http.MethodGet, "/api/communities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var communities []struct {
		ID   uint   `json:"id"`
		Slug string `json:"slug"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &communities))
	require.NotEmpty(t, communities)
	return communities[0].ID, communities[0].Slug
}

func (s *testServer) submit(t *testing.T, token string, communityID uint, link string) uint {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/api/resources", map[string]any{
		"communityId": communityID,
		"title":       "Understanding TCP congestion control",
		"url":         link,
		"tags":        []string{"networking"},
	}, withToken(token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out.ID
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice")

	rec, env := s.do(t, http.MethodGet, "/api/auth/me", nil, withToken(token))
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		User struct {
			Username string `json:"username"`
			Level    string `json:"level"`
		} `json:"user"`
		UnreadCount int `json:"unreadCount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "alice", me.User.Username)
	assert.NotEmpty(t, me.User.Level)
	assert.Zero(t, me.UnreadCount)
	assert.NotContains(t, string(env.Data), "password")

	rec, env = s.do(t, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unauthenticated", env.Error.Kind)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"login": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 登录后 session cookie 也能识别用户
	rec, _ = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec, _ = s.do(t, http.MethodGet, "/api/auth/me", nil, withCookies(cookies))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProfileUpdateAndRefresh(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "carol")

	rec, env := s.do(t, http.MethodPut, "/api/auth/profile", map[string]any{
		"displayName": "Carol D.",
		"bio":         "packets and pixels",
		"preferences": map[string]any{"theme": "matrix"},
	}, withToken(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated struct {
		User struct {
			DisplayName string `json:"display_name"`
			Bio         string `json:"bio"`
			Preferences struct {
				EmailNotifications bool   `json:"emailNotifications"`
				Theme              string `json:"theme"`
			} `json:"preferences"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Carol D.", updated.User.DisplayName)
	assert.Equal(t, "packets and pixels", updated.User.Bio)
	assert.Equal(t, "matrix", updated.User.Preferences.Theme)
	assert.True(t, updated.User.Preferences.EmailNotifications)

	rec, env = s.do(t, http.MethodPut, "/api/auth/profile", map[string]any{
		"preferences": map[string]any{"theme": "neon"},
	}, withToken(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_argument", env.Error.Kind)

	rec, _ = s.do(t, http.MethodPut, "/api/auth/profile", map[string]any{"bio": "anon"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/api/auth/refresh", nil, withToken(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refreshed struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	require.NotEmpty(t, refreshed.Token)

	rec, _ = s.do(t, http.MethodGet, "/api/auth/me", nil, withToken(refreshed.Token))
	assert.Equal(t, http.StatusOK, rec.Code)

	// 停用后旧 token 不能续签，也不能再登录
	require.NoError(t, s.db.Model(&models.User{}).Where("username = ?", "carol").Update("active", false).Error)
	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", nil, withToken(refreshed.Token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"login": "carol", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAvailabilityChecks(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "dave")

	type availability struct {
		Available bool   `json:"available"`
		Message   string `json:"message"`
	}
	check := func(path string) availability {
		t.Helper()
		rec, env := s.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var a availability
		require.NoError(t, json.Unmarshal(env.Data, &a))
		return a
	}

	assert.False(t, check("/api/auth/check-username/dave").Available)
	assert.True(t, check("/api/auth/check-username/erin").Available)
	short := check("/api/auth/check-username/ab")
	assert.False(t, short.Available)
	assert.NotEmpty(t, short.Message)

	assert.False(t, check("/api/auth/check-email/DAVE@example.com").Available)
	assert.True(t, check("/api/auth/check-email/erin@example.com").Available)
	assert.False(t, check("/api/auth/check-email/not-an-email").Available)
}

func TestResourceCommentVoteFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")
	communityID, slug := s.firstCommunity(t)

	resourceID := s.submit(t, alice, communityID, "https://example.com/tcp")

	rec, env := s.do(t, http.MethodPost, "/api/resources", map[string]any{
		"communityId": communityID,
		"title":       "Same link submitted twice",
		"url":         "https://example.com/tcp",
	}, withToken(bob))
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "conflict", env.Error.Kind)

	rec, env = s.do(t, http.MethodPost, "/api/comments", map[string]any{
		"resourceId": resourceID,
		"content":    "Great write-up",
	}, withToken(bob))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var root struct {
		ID    uint `json:"id"`
		Depth int  `json:"depth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &root))
	assert.Zero(t, root.Depth)

	rec, env = s.do(t, http.MethodPost, "/api/comments", map[string]any{
		"resourceId": resourceID,
		"content":    "Thanks!",
		"parentId":   root.ID,
	}, withToken(alice))
	require.Equal(t, http.StatusCreated, rec.Code)
	var reply struct {
		Depth int `json:"depth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reply))
	assert.Equal(t, 1, reply.Depth)

	rec, env = s.do(t, http.MethodPost, "/api/vote", map[string]any{
		"entityType": "comment",
		"entityId":   root.ID,
		"choice":     "up",
	}, withToken(alice))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var vote struct {
		Upvotes    int    `json:"upvotes"`
		Score      int    `json:"score"`
		UserChoice string `json:"userChoice"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &vote))
	assert.Equal(t, 1, vote.Upvotes)
	assert.Equal(t, 1, vote.Score)
	assert.Equal(t, "up", vote.UserChoice)

	rec, _ = s.do(t, http.MethodPost, fmt.Sprintf("/api/resources/%d/vote", resourceID), map[string]string{"vote": "up"}, withToken(bob))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/resources/%d/comments?sort=newest", resourceID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var thread struct {
		Total    int `json:"total"`
		Comments []struct {
			ID      uint `json:"id"`
			Upvotes int  `json:"upvotes"`
			Replies []struct {
				Content string `json:"content"`
			} `json:"replies"`
		} `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &thread))
	require.Len(t, thread.Comments, 1)
	assert.Equal(t, root.ID, thread.Comments[0].ID)
	assert.Equal(t, 1, thread.Comments[0].Upvotes)
	require.Len(t, thread.Comments[0].Replies, 1)
	assert.Equal(t, "Thanks!", thread.Comments[0].Replies[0].Content)

	rec, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/resources/%d", resourceID), nil, withToken(bob))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Upvotes      int    `json:"upvotes"`
		Views        int    `json:"views"`
		CommentCount int    `json:"comment_count"`
		UserVote     string `json:"userVote"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, 1, detail.Upvotes)
	assert.Equal(t, 1, detail.Views)
	assert.Equal(t, "up", detail.UserVote)

	rec, env = s.do(t, http.MethodGet, "/api/resources?community="+slug+"&tag=networking", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 1, list.Total)
}

func TestCommentEditAndDeleteRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")
	communityID, _ := s.firstCommunity(t)
	resourceID := s.submit(t, alice, communityID, "https://example.com/edit")

	rec, env := s.do(t, http.MethodPost, "/api/comments", map[string]any{"resourceId": resourceID, "content": "first"}, withToken(alice))
	require.Equal(t, http.StatusCreated, rec.Code)
	var c struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &c))
	path := fmt.Sprintf("/api/comments/%d", c.ID)

	rec, _ = s.do(t, http.MethodPut, path, map[string]string{"content": "hijacked"}, withToken(bob))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPut, path, map[string]string{"content": "second"}, withToken(alice))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodGet, path+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var edits []struct {
		PriorContent string `json:"prior_content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &edits))
	require.Len(t, edits, 1)

	rec, _ = s.do(t, http.MethodDelete, path, nil, withToken(alice))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, path+"/vote", map[string]string{"vote": "up"}, withToken(bob))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")
	communityID, _ := s.firstCommunity(t)
	resourceID := s.submit(t, alice, communityID, "https://example.com/notify")

	rec, _ := s.do(t, http.MethodPost, "/api/comments", map[string]any{"resourceId": resourceID, "content": "hello"}, withToken(bob))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := s.do(t, http.MethodGet, "/api/notifications", nil, withToken(alice))
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items []struct {
			ID   uint   `json:"id"`
			Type string `json:"type"`
		} `json:"items"`
		UnreadCount int `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.UnreadCount)

	rec, _ = s.do(t, http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", page.Items[0].ID), nil, withToken(bob))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/api/notifications/read-all", nil, withToken(alice))
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Updated int `json:"updated"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 1, out.Updated)
}

func TestInvalidRequests(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice")

	rec, _ := s.do(t, http.MethodGet, "/api/resources/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/resources/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/resources?sort=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := s.do(t, http.MethodPost, "/api/vote", map[string]any{"entityType": "resource", "entityId": 1, "choice": "sideways"}, withToken(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_argument", env.Error.Kind)

	rec, _ = s.do(t, http.MethodPost, "/api/vote", map[string]any{"entityType": "resource", "entityId": 1, "choice": "up"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	s.engine.ServeHTTP(mrec, req)
	assert.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "port42_http_requests_total")
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, hello, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(hello), `"connected"`)

	s.shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	assert.Eventually(t, func() bool { return s.hub.ClientCount() == 0 }, 5*time.Second, 20*time.Millisecond)
}
