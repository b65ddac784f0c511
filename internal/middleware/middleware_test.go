package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "faultline-go/internal/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apperrors.Envelope {
	t.Helper()
	var env apperrors.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestRequestID(t *testing.T) {
	t.Run("Generate request ID when not provided", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		var fromCtx string
		router.GET("/test", func(c *gin.Context) {
			fromCtx = apperrors.CorrelationIDFromContext(c.Request.Context())
			c.String(200, "OK")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		rid := w.Header().Get("X-Request-ID")
		assert.Len(t, rid, 36)
		assert.Equal(t, rid, fromCtx)
	})

	t.Run("Use provided request ID", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			assert.Equal(t, "custom-request-id", c.GetString(ContextKeyRequestID))
			c.String(200, "OK")
		})

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "custom-request-id")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, "custom-request-id", w.Header().Get("X-Request-ID"))
	})
}

func TestRateLimiter(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), RateLimiter(1, 1))
	router.GET("/test", func(c *gin.Context) { c.String(200, "OK") })

	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, httptest.NewRequest("GET", "/test", nil))
	require.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Equal(t, "1", w2.Header().Get("Retry-After"))

	env := decodeEnvelope(t, w2)
	assert.Equal(t, apperrors.CodeRateLimit, env.Error.Code)
	assert.Equal(t, apperrors.CategoryRateLimit, env.Error.Category)
	require.NotNil(t, env.Error.RetryAfterSeconds)
	assert.Equal(t, 1, *env.Error.RetryAfterSeconds)
	assert.Equal(t, w2.Header().Get("X-Request-ID"), env.Error.CorrelationID)
}

func TestRateLimiterPerIP(t *testing.T) {
	router := gin.New()
	router.Use(RateLimiter(1, 1))
	router.GET("/test", func(c *gin.Context) { c.String(200, "OK") })

	for _, ip := range []string{"10.0.0.1:1234", "10.0.0.2:1234"} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, ip)
	}
}

func TestCORS(t *testing.T) {
	newRouter := func(origins []string) *gin.Engine {
		r := gin.New()
		r.Use(CORS(origins, "/api/v1/admin"))
		r.GET("/api/v1/admin/ping", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		r.GET("/api/v1/ping", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		r.OPTIONS("/api/v1/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	w := httptest.NewRecorder()
	newRouter(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	newRouter(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	r := newRouter([]string{"https://app.example"})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ping", nil)
	req.Header.Set("Origin", "https://app.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestManagementAuth(t *testing.T) {
	validate := func(k string) bool { return k == "secret" }
	r := gin.New()
	r.GET("/m", ManagementAuth(validate), func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/off", ManagementAuth(nil), func(c *gin.Context) { c.String(200, "ok") })

	cases := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"bearer", "/m", map[string]string{"Authorization": "Bearer secret"}, 200},
		{"header", "/m", map[string]string{"X-Management-Key": "secret"}, 200},
		{"query", "/m?key=secret", nil, 200},
		{"missing", "/m", nil, 401},
		{"wrong", "/m", map[string]string{"Authorization": "Bearer nope"}, 401},
		{"disabled", "/off", map[string]string{"Authorization": "Bearer secret"}, 403},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == 401 {
				assert.Equal(t, apperrors.CodeUnauthorized, decodeEnvelope(t, w).Error.Code)
			}
		})
	}
}

func TestRequestLoggerAndMetrics(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(), Metrics())
	r.GET("/fail", func(c *gin.Context) {
		AbortWithRecord(c, apperrors.New(http.StatusBadRequest, apperrors.CodeValidation, "bad input"))
	})
	r.GET("/metrics", MetricsHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeValidation, decodeEnvelope(t, w).Error.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "faultline_http_requests_total")
}
