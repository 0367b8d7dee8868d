package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/freelance-marketplace/internal/models"
)

type stubParser struct {
	userID uuid.UUID
	role   string
	err    error
}

func (p stubParser) ParseAccess(string) (uuid.UUID, string, error) {
	return p.userID, p.role, p.err
}

func request(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()

	tests := []struct {
		name   string
		parser stubParser
		header string
		want   int
	}{
		{"без заголовка", stubParser{userID: userID, role: models.RoleBuyer}, "", http.StatusUnauthorized},
		{"не bearer", stubParser{userID: userID, role: models.RoleBuyer}, "Basic abc", http.StatusUnauthorized},
		{"невалидный токен", stubParser{err: errors.New("bad signature")}, "Bearer abc", http.StatusUnauthorized},
		{"пустой пользователь", stubParser{userID: uuid.Nil, role: models.RoleBuyer}, "Bearer abc", http.StatusUnauthorized},
		{"неизвестная роль", stubParser{userID: userID, role: "root"}, "Bearer abc", http.StatusUnauthorized},
		{"валидный токен", stubParser{userID: userID, role: models.RoleBuyer}, "Bearer abc", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/me", AuthMiddleware(tt.parser), func(c *gin.Context) {
				assert.Equal(t, userID, c.MustGet(ContextUserIDKey))
				assert.Equal(t, models.RoleBuyer, c.GetString(ContextRoleKey))
				c.Status(http.StatusOK)
			})

			w := request(r, http.MethodGet, "/me", map[string]string{"Authorization": tt.header})
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for role, want := range map[string]int{
		models.RoleAdmin:      http.StatusOK,
		models.RoleBuyer:      http.StatusForbidden,
		models.RoleFreelancer: http.StatusForbidden,
	} {
		r := gin.New()
		r.GET("/admin", func(c *gin.Context) {
			c.Set(ContextRoleKey, role)
			c.Next()
		}, RequireRole(models.RoleAdmin), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		w := request(r, http.MethodGet, "/admin", nil)
		assert.Equal(t, want, w.Code, role)
	}
}

func TestUUIDValidator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/jobs/:id", UUIDValidator("id"), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusBadRequest, request(r, http.MethodGet, "/jobs/123", nil).Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/jobs/"+uuid.NewString(), nil).Code)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com"}))
	r.GET("/jobs", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := request(r, http.MethodGet, "/jobs", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = request(r, http.MethodGet, "/jobs", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = request(r, http.MethodOptions, "/jobs", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	for name, client := range map[string]redis.UniversalClient{"memory": nil, "redis": rdb} {
		t.Run(name, func(t *testing.T) {
			r := gin.New()
			r.GET("/jobs", RateLimitMiddleware(2, time.Minute, client), func(c *gin.Context) { c.Status(http.StatusOK) })

			assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/jobs", nil).Code)
			w := request(r, http.MethodGet, "/jobs", nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
			assert.Equal(t, http.StatusTooManyRequests, request(r, http.MethodGet, "/jobs", nil).Code)
		})
	}
}
