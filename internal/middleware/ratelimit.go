package middleware

import (
	"fmt"
	"net/http"
	"time"

	rediskey "next_mart/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// UserIDHeader 网关鉴权后透传的买家 ID。
const UserIDHeader = "X-User-ID"

// luaRateLimit：Redis 滑动窗口限流 Lua 脚本（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前时间(ms)，ARGV[2]=窗口开始时间(ms)，ARGV[3]=窗口毫秒数，ARGV[4]=member，ARGV[5]=limit
// 返回：当前窗口内的请求数（超限返回 -1）
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowMs = tonumber(ARGV[3])
local member = ARGV[4]

-- 删除窗口外的旧记录
redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)

if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, windowMs)
  return count + 1
else
  return -1
end
`

// RedisRateLimit Redis 分布式限流，按 X-User-ID，缺失时按 IP。
// scope 区分不同接口的限流桶。
func RedisRateLimit(rdb *rd.Client, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if uid := c.GetHeader(UserIDHeader); uid != "" {
			key = rediskey.RateLimitKey(scope, "user:"+uid)
		} else {
			key = rediskey.RateLimitKey(scope, "ip:"+c.ClientIP())
		}

		now := time.Now()
		nowMs := now.UnixMilli()
		windowMs := window.Milliseconds()
		member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

		res, err := rdb.Eval(c.Request.Context(), luaRateLimit, []string{key},
			nowMs, nowMs-windowMs, windowMs, member, limit).Int()
		if err != nil {
			// Redis 出错时放行（降级策略）
			c.Next()
			return
		}

		if res < 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 429,
				"msg":  "请求过于频繁，请稍后再试",
			})
			return
		}
		c.Next()
	}
}
