package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gemini-chat/internal/ai"
	"github.com/suPer8Hu/gemini-chat/internal/auth"
	"github.com/suPer8Hu/gemini-chat/internal/chat"
	"github.com/suPer8Hu/gemini-chat/internal/config"
	appdb "github.com/suPer8Hu/gemini-chat/internal/db"
	"github.com/suPer8Hu/gemini-chat/internal/httpapi/handlers"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	calls  *int32
}

func newTestEnv(t *testing.T, apiKey string, gemini http.HandlerFunc) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		gemini(w, r)
	}))
	t.Cleanup(srv.Close)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, appdb.Migrate(gdb))

	cfg := config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour}
	repo := chat.NewRepo(gdb)
	provider := ai.NewGeminiProvider(srv.URL, apiKey, "gemini-2.5-flash", 5*time.Second)
	svc := chat.NewService(provider, auth.NewResolver(cfg.JWTSecret), repo, repo, nil)

	return &testEnv{
		router: NewRouter(handlers.NewHandler(gdb, cfg, svc), cfg),
		db:     gdb,
		calls:  &calls,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/users", "", fmt.Sprintf(`{"email":%q,"password":"hunter2hunter2"}`, email))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func (e *testEnv) turnCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&chat.TurnRecord{}).Count(&n).Error)
	return n
}

func replyWith(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
	}
}

const helloBody = `{"messages":[{"role":"user","content":"Hello"}]}`

func TestPostChat_MissingKey(t *testing.T) {
	env := newTestEnv(t, "", replyWith("Hi there"))

	for _, body := range []string{helloBody, `{not json`} {
		w := env.do(t, http.MethodPost, "/api/chat", "", body)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Missing API Key"}`, w.Body.String())
	}
	assert.Zero(t, atomic.LoadInt32(env.calls))
}

func TestPostChat_AuthenticatedSavesHistory(t *testing.T) {
	env := newTestEnv(t, "k", replyWith("Hi there"))
	token := env.register(t, "A@x.com")

	w := env.do(t, http.MethodPost, "/api/chat", token, helloBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"content":"Hi there"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = env.do(t, http.MethodGet, "/api/chat/history", token, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"code": 0,
		"message": "ok",
		"data": {
			"userEmail": "a@x.com",
			"messages": [
				{"role": "user", "content": "Hello"},
				{"role": "assistant", "content": "Hi there"}
			]
		}
	}`, w.Body.String())
}

func TestPostChat_AnonymousNotSaved(t *testing.T) {
	env := newTestEnv(t, "k", replyWith("Hi there"))

	w := env.do(t, http.MethodPost, "/api/chat", "", helloBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"content":"Hi there"}`, w.Body.String())

	// a bad token degrades to anonymous
	w = env.do(t, http.MethodPost, "/api/chat", "not-a-token", helloBody)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Zero(t, env.turnCount(t))
}

func TestPostChat_UpstreamStatusPropagates(t *testing.T) {
	env := newTestEnv(t, "k", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"rate limited"}`)
	})
	token := env.register(t, "a@x.com")

	w := env.do(t, http.MethodPost, "/api/chat", token, helloBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":{"error":"rate limited"}}`, w.Body.String())
	assert.Zero(t, env.turnCount(t))
}

func TestPostChat_TransportFailure(t *testing.T) {
	env := newTestEnv(t, "k", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>oops</html>`)
	})

	w := env.do(t, http.MethodPost, "/api/chat", "", helloBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())
}

func TestPostChat_BadRequests(t *testing.T) {
	env := newTestEnv(t, "k", replyWith("Hi there"))

	w := env.do(t, http.MethodPost, "/api/chat", "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request body"}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/chat", "", `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"empty message"}`, w.Body.String())

	assert.Zero(t, atomic.LoadInt32(env.calls))
}

func TestHistory_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, "k", replyWith("Hi there"))

	w := env.do(t, http.MethodGet, "/api/chat/history", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := env.register(t, "new@x.com")
	w = env.do(t, http.MethodGet, "/api/chat/history", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"messages":[]`)
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t, "k", replyWith("Hi there"))
	env.register(t, "a@x.com")

	w := env.do(t, http.MethodPost, "/login", "", `{"email":"a@x.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/login", "", `{"email":" A@X.com ","password":"hunter2hunter2"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = env.do(t, http.MethodGet, "/me", resp.Data.Token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"a@x.com"`)

	// duplicate registration
	w = env.do(t, http.MethodPost, "/users", "", `{"email":"a@x.com","password":"hunter2hunter2"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNoRoute(t *testing.T) {
	env := newTestEnv(t, "k", replyWith("Hi there"))
	req := httptest.NewRequest(http.MethodGet, "/nope", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
