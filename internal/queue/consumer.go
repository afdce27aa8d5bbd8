package queue

import (
	"context"
	"encoding/json"
	"time"

	"next_mart/internal/logger"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Handler 处理一条订单事件。返回错误会按退避重试，超过次数后记录日志并提交位点。
type Handler interface {
	HandleOrderEvent(ctx context.Context, e OrderEvent) error
}

type Consumer struct {
	r       *kafka.Reader
	handler Handler
	logger  *zap.Logger

	maxAttempts int
	backoff     time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, handler Handler, l *zap.Logger) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		handler:     handler,
		logger:      l,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		// 沿用生产端的 trace，日志里能串起下单和发信
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{msg: &m})
		c.dispatch(msgCtx, m.Value)

		if err := c.r.CommitMessages(ctx, m); err != nil {
			logger.Warn(ctx, c.logger, "consumer commit", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// dispatch 解析并交给 handler，失败按固定退避重试。通知类消息不阻塞后续消息，重试耗尽即放弃。
func (c *Consumer) dispatch(ctx context.Context, value []byte) {
	var e OrderEvent
	if err := json.Unmarshal(value, &e); err != nil {
		logger.Warn(ctx, c.logger, "consumer unmarshal", zap.Error(err))
		return
	}
	if err := e.Validate(); err != nil {
		logger.Warn(ctx, c.logger, "consumer invalid event", zap.Error(err))
		return
	}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.handler.HandleOrderEvent(ctx, e)
		if err == nil {
			return
		}
		logger.Warn(ctx, c.logger, "handle order event",
			zap.String("event_id", e.EventID),
			zap.String("type", string(e.Type)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	logger.Error(ctx, c.logger, "order event dropped after retries", zap.String("event_id", e.EventID))
}
