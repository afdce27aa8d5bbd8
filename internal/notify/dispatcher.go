package notify

import (
	"context"
	"time"

	"next_mart/internal/model"
	"next_mart/internal/queue"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// Dispatcher 把订单事件写入 Redis Stream，发票和邮件由 Worker 异步完成。
// 写入失败只返回错误，调用方记录日志即可，不影响已提交的订单。
type Dispatcher struct {
	rdb    *rd.Client
	stream string
	now    func() time.Time
}

func NewDispatcher(rdb *rd.Client, stream string) *Dispatcher {
	return &Dispatcher{rdb: rdb, stream: stream, now: time.Now}
}

func (d *Dispatcher) NotifyOrderPlaced(ctx context.Context, o model.Order) error {
	return d.enqueue(ctx, queue.EventOrderPlaced, o)
}

func (d *Dispatcher) NotifyPaymentPaid(ctx context.Context, o model.Order) error {
	return d.enqueue(ctx, queue.EventPaymentPaid, o)
}

func (d *Dispatcher) enqueue(ctx context.Context, typ queue.EventType, o model.Order) error {
	_, err := queue.Enqueue(ctx, d.rdb, d.stream, queue.OrderEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		OrderID:    o.ID,
		OrderNo:    o.OrderNo,
		UserID:     o.UserID,
		Amount:     o.FinalAmount,
		OccurredAt: d.now(),
	})
	return err
}
