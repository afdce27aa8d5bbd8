package redis

import "fmt"

// FlashSaleDiscountKey 缓存商品的限时折扣百分比。
func FlashSaleDiscountKey(productID uint) string {
	return fmt.Sprintf("next_mart:flash_sale:discount:%d", productID)
}

// NotificationSentKey 标记某个事件的通知是否已发送。
func NotificationSentKey(eventID string) string {
	return fmt.Sprintf("next_mart:notify:sent:%s", eventID)
}

// RequestStatusKey 存储下单请求 request_id 的处理状态（pending/success/failed）。
func RequestStatusKey(requestID string) string {
	return fmt.Sprintf("next_mart:request:status:%s", requestID)
}

// IdempotencyKey 将客户端 Idempotency-Key 映射到 request_id，按买家隔离。
func IdempotencyKey(userID uint, idemKey string) string {
	return fmt.Sprintf("next_mart:idem:%d:%s", userID, idemKey)
}

// RateLimitKey 下单限流，subject 为 user:<id> 或 ip:<addr>。
func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("next_mart:rate_limit:%s:%s", scope, subject)
}
