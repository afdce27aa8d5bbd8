package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus 订单状态机：Pending → Processing → Completed，Pending/Processing → Cancelled。
type OrderStatus string

const (
	OrderPending    OrderStatus = "Pending"
	OrderProcessing OrderStatus = "Processing"
	OrderCompleted  OrderStatus = "Completed"
	OrderCancelled  OrderStatus = "Cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderCompleted, OrderCancelled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// Terminal Completed / Cancelled 之后不允许再流转。
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentOnline PaymentMethod = "Online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

// OrderItem 下单时的价格快照，嵌入订单，不与其他订单共享。
type OrderItem struct {
	ProductID uint            `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Color     string          `json:"color"`
}

// LineTotal = UnitPrice × Quantity
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// Order 订单。金额字段在创建时计算，之后价格或优惠券变化不会影响已有订单。
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OrderNo string `gorm:"size:64;uniqueIndex;not null" json:"order_no"`
	UserID  uint   `gorm:"not null;index" json:"user_id"`
	ShopID  uint   `gorm:"not null;index" json:"shop_id"`

	Items      []OrderItem `gorm:"serializer:json;type:text;not null" json:"items"`
	CouponID   *uint       `gorm:"index" json:"coupon_id"`
	CouponCode string      `gorm:"size:64" json:"coupon_code,omitempty"`

	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	Discount       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount"`
	DeliveryCharge decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"delivery_charge"`
	FinalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"final_amount"`

	Status          OrderStatus   `gorm:"size:16;not null;default:Pending;index" json:"status"`
	ShippingAddress string        `gorm:"size:512;not null" json:"shipping_address"`
	PaymentMethod   PaymentMethod `gorm:"size:16;not null" json:"payment_method"`
	PaymentStatus   PaymentStatus `gorm:"size:16;not null;default:Pending" json:"payment_status"`

	Payment *Payment `gorm:"-" json:"payment,omitempty"`
}

func (Order) TableName() string { return "orders" }
