package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorchat/backend/internal/generation"
	"mentorchat/backend/internal/market"
	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/di"
	apperrors "mentorchat/backend/pkg/errors"
)

func newRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("CACHE_PURGE_WINDOW", "0s")
	t.Setenv("RATE_LIMIT", "1000")

	gen := generation.GeneratorFunc(func(_ context.Context, req generation.Request) (string, error) {
		return "반갑습니다.", nil
	})
	c, err := di.New(context.Background(), config.Load(), nil, di.Options{
		Generator: gen,
		Market:    market.NewStatic(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	r := New(c)
	r.SetupRoutes(http.NotFoundHandler())
	return r
}

func do(r *Router, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestHealthRoutes(t *testing.T) {
	r := newRouter(t)
	r.Container.Health.RunChecks(context.Background())

	for _, path := range []string{"/health", "/api/health"} {
		w := do(r, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, body["components"], "database")
		assert.Contains(t, body["components"], "generation")
	}
}

func TestChatbotFlowThroughRouter(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/chatbot/init", `{"persona_id":"lynch"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var init struct {
		SessionID string `json:"session_id"`
		Ticket    string `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &init))
	assert.NotEmpty(t, init.Ticket)

	w = do(r, http.MethodPost, "/api/v1/chatbot",
		`{"session_id":"`+init.SessionID+`","persona_id":"lynch","message":"안녕하세요"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "반갑습니다.")

	w = do(r, http.MethodGet, "/api/v1/sessions/"+init.SessionID+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)
}

func TestSchemaViolationRejected(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/chatbot/init", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeValidationFailed)

	w = do(r, http.MethodGet, "/api/v1/rooms/lobby/threads/not-a-key/messages", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSchemaServed(t *testing.T) {
	w := do(newRouter(t), http.MethodGet, "/api/docs/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/chatbot/analyze")
}

func TestWebSocketRouteRequiresUpgrade(t *testing.T) {
	w := do(newRouter(t), http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/personas", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
