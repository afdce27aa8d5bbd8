package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Producer 订单事件写入 Kafka。
type Producer struct {
	w      *kafka.Writer
	tracer trace.Tracer
}

// NewProducer
// - Hash + Key: 同一订单的事件落到同一分区，下单事件总在支付事件之前。
// - RequireAll: 等待 ISR 副本确认。
// - MaxAttempts/Timeout: 写失败由 Relay 保留在 Redis Stream 里下轮重投，这里不必无限重试。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 20 * time.Millisecond,
		},
		tracer: otel.Tracer("next_mart/queue"),
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Publish 以 order_no 为 key 同步写入一条事件；事件类型和 trace 上下文放在消息头里。
func (p *Producer) Publish(ctx context.Context, e OrderEvent) error {
	ctx, span := p.tracer.Start(ctx, "queue.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", e.EventID),
		attribute.String("event_type", string(e.Type)),
		attribute.String("order_no", e.OrderNo),
	)

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.EventID, err)
	}
	msg := kafka.Message{
		Key:     []byte(e.OrderNo),
		Value:   b,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(e.Type)}},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
