package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storyprint/printqueue/common"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "api error with fields",
			err:            common.NewAPIError(http.StatusBadRequest, "validation failed", map[string]any{"SceneID": "failed required"}),
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"validation failed","fields":{"SceneID":"failed required"}}`,
		},
		{
			name:           "wrapped api error",
			err:            errors.Join(common.Errf(http.StatusNotFound, "job not found")),
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"job not found"}`,
		},
		{
			name:           "plain error becomes 500",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"boom"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(ErrorHandler())
			r.GET("/x", func(c *gin.Context) {
				c.Error(tt.err)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestBind(t *testing.T) {
	gin.SetMode(gin.TestMode)

	type body struct {
		Name string `json:"name" validate:"required"`
	}

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{name: "valid body", body: `{"name":"x"}`, expectedStatus: http.StatusOK},
		{name: "malformed json", body: `{`, expectedStatus: http.StatusBadRequest},
		{name: "missing required field", body: `{}`, expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(ErrorHandler())
			r.POST("/x", func(c *gin.Context) {
				var b body
				if !Bind(c, &b) {
					return
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(TimeoutMiddleware(50*time.Millisecond), RequestLogger(zap.NewNop()))
	r.GET("/x", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
