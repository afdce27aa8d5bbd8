package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	// RequestPending 表示请求正在处理。
	RequestPending = "pending"
	// RequestSuccess 表示订单已落库（在线支付时可能没有拿到跳转地址）。
	RequestSuccess = "success"
	// RequestFailed 表示下单失败（已终态）。
	RequestFailed = "failed"
)

// RequestState 对应 Redis 内的 request 状态结构。
type RequestState struct {
	RequestID  string
	Status     string
	OrderNo    string
	PaymentURL string
	Reason     string
}

// GetRequestState 查询 request_id 当前状态。found=false 表示 key 不存在。
func GetRequestState(ctx context.Context, rdb *rd.Client, requestID string) (RequestState, bool, error) {
	key := RequestStatusKey(requestID)
	m, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return RequestState{}, false, err
	}
	if len(m) == 0 {
		return RequestState{}, false, nil
	}

	out := RequestState{
		RequestID:  requestID,
		Status:     m["status"],
		OrderNo:    m["order_no"],
		PaymentURL: m["payment_url"],
		Reason:     m["reason"],
	}
	if out.Status == "" {
		out.Status = RequestPending
	}
	return out, true, nil
}

// PutRequestState 更新 request 状态，并刷新 key TTL。
func PutRequestState(ctx context.Context, rdb *rd.Client, st RequestState, ttl time.Duration) error {
	key := RequestStatusKey(st.RequestID)
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"request_id", st.RequestID,
		"status", st.Status,
		"order_no", st.OrderNo,
		"payment_url", st.PaymentURL,
		"reason", st.Reason,
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
