package queue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderPlaced EventType = "order_placed"
	EventPaymentPaid EventType = "payment_paid"
)

// OrderEvent 订单事件，经 Redis Stream → Kafka 投递给通知 worker。
// 只携带标识和金额，worker 按 OrderID 回表取完整订单。
type OrderEvent struct {
	EventID    string          `json:"event_id"`
	Type       EventType       `json:"type"`
	OrderID    uint            `json:"order_id"`
	OrderNo    string          `json:"order_no"`
	UserID     uint            `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e OrderEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.Type != EventOrderPlaced && e.Type != EventPaymentPaid {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if e.OrderNo == "" {
		return fmt.Errorf("order_no is required")
	}
	if e.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("amount must be >= 0")
	}
	return nil
}

// StreamValues 编码为 XADD 字段。
func (e OrderEvent) StreamValues() map[string]any {
	return map[string]any{
		"event_id":    e.EventID,
		"type":        string(e.Type),
		"order_id":    strconv.FormatUint(uint64(e.OrderID), 10),
		"order_no":    e.OrderNo,
		"user_id":     strconv.FormatUint(uint64(e.UserID), 10),
		"amount":      e.Amount.StringFixed(2),
		"occurred_at": strconv.FormatInt(e.OccurredAt.UnixMilli(), 10),
	}
}

func parseOrderEvent(values map[string]interface{}) (OrderEvent, error) {
	eventID, err := getStreamString(values, "event_id")
	if err != nil {
		return OrderEvent{}, err
	}
	typ, err := getStreamString(values, "type")
	if err != nil {
		return OrderEvent{}, err
	}
	orderStr, err := getStreamString(values, "order_id")
	if err != nil {
		return OrderEvent{}, err
	}
	orderNo, err := getStreamString(values, "order_no")
	if err != nil {
		return OrderEvent{}, err
	}
	userStr, err := getStreamString(values, "user_id")
	if err != nil {
		return OrderEvent{}, err
	}
	amountStr, err := getStreamString(values, "amount")
	if err != nil {
		return OrderEvent{}, err
	}
	occurredStr, err := getStreamString(values, "occurred_at")
	if err != nil {
		return OrderEvent{}, err
	}

	orderID, err := strconv.ParseUint(orderStr, 10, 64)
	if err != nil {
		return OrderEvent{}, fmt.Errorf("invalid order_id %q", orderStr)
	}
	userID, err := strconv.ParseUint(userStr, 10, 64)
	if err != nil {
		return OrderEvent{}, fmt.Errorf("invalid user_id %q", userStr)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return OrderEvent{}, fmt.Errorf("invalid amount %q", amountStr)
	}
	occurredMs, err := strconv.ParseInt(occurredStr, 10, 64)
	if err != nil {
		return OrderEvent{}, fmt.Errorf("invalid occurred_at %q", occurredStr)
	}

	e := OrderEvent{
		EventID:    eventID,
		Type:       EventType(typ),
		OrderID:    uint(orderID),
		OrderNo:    orderNo,
		UserID:     uint(userID),
		Amount:     amount,
		OccurredAt: time.UnixMilli(occurredMs).UTC(),
	}
	if err := e.Validate(); err != nil {
		return OrderEvent{}, err
	}
	return e, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
