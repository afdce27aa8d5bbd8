package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const notifyMarkTTL = 7 * 24 * time.Hour

// ClaimNotification 通过 SETNX 保证同一事件只通知一次：
// - 首次认领返回 true
// - 重复投递返回 false（不会重复发邮件）
func ClaimNotification(ctx context.Context, rdb *rd.Client, eventID string) (bool, error) {
	return rdb.SetNX(ctx, NotificationSentKey(eventID), "1", notifyMarkTTL).Result()
}

// ReleaseNotification 发送失败时撤销认领，让重试可以再次发送。
func ReleaseNotification(ctx context.Context, rdb *rd.Client, eventID string) error {
	return rdb.Del(ctx, NotificationSentKey(eventID)).Err()
}
