package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/pkg/redis"
)

const testSessionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newSessionStore(t *testing.T) (*redis.SessionStore, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })
	store, err := redis.NewSessionStore(rc, testSessionKey)
	require.NoError(t, err)
	return store, rc
}

func TestSessionAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, _ := newSessionStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateSession(ctx, "sess-ok", &redis.SessionData{UserID: "12345678", CreatedAt: time.Now()}, time.Hour))
	require.NoError(t, store.CreateSession(ctx, "sess-bad", &redis.SessionData{UserID: "not-a-user"}, time.Hour))

	r := gin.New()
	r.Use(SessionAuth(store))
	r.GET("/me", func(c *gin.Context) {
		id, ok := GetUserID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})

	cases := []struct {
		name    string
		cookie  string
		status  int
		contain string
	}{
		{"missing cookie", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown session", "sess-gone", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"malformed user id", "sess-bad", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"valid", "sess-ok", http.StatusOK, `"user_id":"12345678"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tc.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.contain)
		})
	}
}

func TestCSRF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CSRF())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(method, cookie, header string) int {
		req := httptest.NewRequest(method, "/x", strings.NewReader("{}"))
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: cookie})
		}
		if header != "" {
			req.Header.Set(CSRFHeader, header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodGet, "", ""), "safe methods pass")
	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, "", ""))
	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, "abc", ""))
	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, "abc", "abd"))
	assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "abc", "abc"))
}

func TestStaffAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(StaffAuth())
	r.POST("/admin", func(c *gin.Context) {
		id, _ := GetStaffID(c)
		c.String(http.StatusOK, id)
	})

	do := func(header, value string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		if header != "" {
			req.Header.Set(header, value)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("", "").Code)
	assert.Equal(t, http.StatusForbidden, do(AdminIDHeader, "12345678").Code)
	assert.Equal(t, http.StatusForbidden, do(ServiceIDHeader, "A0001").Code)

	w := do(AdminIDHeader, "A0001")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A0001", w.Body.String())

	w = do(ServiceIDHeader, "CS0042")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CS0042", w.Body.String())
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggerMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Body.String(), 36)
}
