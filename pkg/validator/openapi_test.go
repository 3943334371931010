package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mentorchat/backend/pkg/errors"
)

const schema = `
openapi: 3.0.3
info:
  title: test
  version: 1.0.0
paths:
  /api/v1/chatbot/init:
    post:
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [persona_id]
              properties:
                persona_id:
                  type: string
                  minLength: 1
      responses:
        "201":
          description: created
`

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	v, err := NewOpenAPIValidatorFromData([]byte(schema))
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorHandler(), v.Middleware())
	r.POST("/api/v1/chatbot/init", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/undocumented", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestValidRequestPasses(t *testing.T) {
	w := post(newEngine(t), "/api/v1/chatbot/init", `{"persona_id":"buffett"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestInvalidRequestRejected(t *testing.T) {
	r := newEngine(t)

	w := post(r, "/api/v1/chatbot/init", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeValidationFailed)

	w = post(r, "/api/v1/chatbot/init", `{"persona_id":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUndocumentedRoutePasses(t *testing.T) {
	w := httptest.NewRecorder()
	newEngine(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/undocumented", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRejectsInvalidSchema(t *testing.T) {
	_, err := NewOpenAPIValidatorFromData([]byte("openapi: 3.0.3\ninfo: {}\npaths: {}\n"))
	assert.Error(t, err)
}
