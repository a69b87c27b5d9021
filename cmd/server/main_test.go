package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mirchi_backend/internal/config"
	"mirchi_backend/internal/handler"
	"mirchi_backend/internal/ratelimit"
	"mirchi_backend/internal/repository"
	"mirchi_backend/internal/service"
	"mirchi_backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, limit int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtUtil, err := utils.NewJWTUtil("router-secret", 1)
	require.NoError(t, err)
	repo := repository.NewMemoryUserRepository()
	svc := service.NewAuthService(repo, jwtUtil, nil, service.AuthConfig{}, nil)

	return newRouter(&config.Config{Env: config.EnvDevelopment}, zap.NewNop(), jwtUtil,
		ratelimit.NewLocalLimiter(limit, time.Hour),
		handler.NewAuthHandler(svc, handler.ErrorResponder{}),
		handler.NewHealthHandler(repo))
}

func TestRouter_RateLimitCoversEveryPath(t *testing.T) {
	for _, path := range []string{"/api/health", "/metrics", "/api/v1/auth/me", "/nope"} {
		t.Run(path, func(t *testing.T) {
			r := newTestRouter(t, 1)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			require.NotEqual(t, http.StatusTooManyRequests, w.Code)

			w = httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
		})
	}
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(t, 100)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Route not found"}`, w.Body.String())
}
