package wake

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storyprint/printqueue/middleware"
	"github.com/stretchr/testify/assert"
)

type countingWaker struct {
	n atomic.Int32
}

func (w *countingWaker) Wake() { w.n.Add(1) }

func newWakeRouter(token string, w Waker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.POST("/wake", Handler(token, w, nil))
	return r
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name           string
		configured     string
		sent           string
		expectedStatus int
		woken          int32
	}{
		{"valid token", "s3cret", "s3cret", http.StatusAccepted, 1},
		{"wrong token", "s3cret", "guess", http.StatusUnauthorized, 0},
		{"missing token", "s3cret", "", http.StatusUnauthorized, 0},
		{"endpoint disabled", "", "anything", http.StatusForbidden, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			waker := &countingWaker{}
			r := newWakeRouter(tt.configured, waker)

			req := httptest.NewRequest(http.MethodPost, "/wake", nil)
			if tt.sent != "" {
				req.Header.Set(TokenHeader, tt.sent)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.woken, waker.n.Load())
		})
	}
}

func TestHTTPNotifier_WakesWorker(t *testing.T) {
	waker := &countingWaker{}
	srv := httptest.NewServer(newWakeRouter("s3cret", waker))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL+"/wake", "s3cret", time.Second, srv.Client(), nil)
	n.Notify()
	n.Notify()
	n.Close()

	assert.Equal(t, int32(2), waker.n.Load())
}

func TestHTTPNotifier_FailuresNeverSurface(t *testing.T) {
	t.Run("rejected token", func(t *testing.T) {
		waker := &countingWaker{}
		srv := httptest.NewServer(newWakeRouter("s3cret", waker))
		defer srv.Close()

		n := NewHTTPNotifier(srv.URL+"/wake", "wrong", time.Second, srv.Client(), nil)
		n.Notify()
		n.Close()

		assert.Zero(t, waker.n.Load())
	})

	t.Run("unreachable worker does not block the caller", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		}))
		defer srv.Close()

		n := NewHTTPNotifier(srv.URL, "s3cret", 50*time.Millisecond, srv.Client(), nil)

		start := time.Now()
		n.Notify()
		assert.Less(t, time.Since(start), 50*time.Millisecond)

		n.Close()
	})

	t.Run("notify after close is ignored", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()

		n := NewHTTPNotifier(srv.URL, "s3cret", time.Second, srv.Client(), nil)
		n.Close()
		n.Notify()
		n.Close()

		assert.Zero(t, hits.Load())
	})
}
