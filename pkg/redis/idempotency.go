package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// AcquireIdempotency 用 SETNX 占用幂等键。
// acquired=false 时 owner 为先到请求的 request_id，调用方据此回放结果。
func AcquireIdempotency(ctx context.Context, rdb *rd.Client, userID uint, idemKey, requestID string, ttl time.Duration) (owner string, acquired bool, err error) {
	key := IdempotencyKey(userID, idemKey)
	ok, err := rdb.SetNX(ctx, key, requestID, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return requestID, true, nil
	}

	owner, err = rdb.Get(ctx, key).Result()
	if errors.Is(err, rd.Nil) {
		// 恰好过期或被释放，重试一次
		ok, err = rdb.SetNX(ctx, key, requestID, ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return requestID, true, nil
		}
		owner, err = rdb.Get(ctx, key).Result()
	}
	if err != nil {
		return "", false, err
	}
	return owner, false, nil
}

// luaReleaseIfMatch 仅当键值匹配 request_id 时才删除，避免误删新请求的占位。
const luaReleaseIfMatch = `
local key = KEYS[1]
local requestID = ARGV[1]
if redis.call('GET', key) == requestID then
  return redis.call('DEL', key)
end
return 0
`

// ReleaseIdempotencyIfMatch 下单失败后释放幂等键，允许客户端用同一个键重试。
func ReleaseIdempotencyIfMatch(ctx context.Context, rdb *rd.Client, userID uint, idemKey, requestID string) error {
	key := IdempotencyKey(userID, idemKey)
	_, err := rdb.Eval(ctx, luaReleaseIfMatch, []string{key}, requestID).Int()
	return err
}
