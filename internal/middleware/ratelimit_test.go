package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedEngine(t *testing.T, limit int) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := gin.New()
	r.POST("/orders", RedisRateLimit(rdb, "checkout", limit, time.Minute), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 0})
	})
	return r, mr
}

func hit(r *gin.Engine, userID, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitPerUser(t *testing.T) {
	r, _ := newLimitedEngine(t, 2)

	assert.Equal(t, http.StatusOK, hit(r, "7", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(r, "7", "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "7", "10.0.0.3"))

	// 其他用户不受影响
	assert.Equal(t, http.StatusOK, hit(r, "8", "10.0.0.1"))
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	r, mr := newLimitedEngine(t, 1)

	assert.Equal(t, http.StatusOK, hit(r, "", "10.0.0.9"))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "", "10.0.0.9"))
	assert.Equal(t, http.StatusOK, hit(r, "", "10.0.0.10"))

	require.True(t, mr.Exists("next_mart:rate_limit:checkout:ip:10.0.0.9"))
}

func TestRateLimitRedisDownPassesThrough(t *testing.T) {
	r, mr := newLimitedEngine(t, 1)
	mr.Close()

	assert.Equal(t, http.StatusOK, hit(r, "7", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(r, "7", "10.0.0.1"))
}
