package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus 支付状态：Pending 为初始态，Paid / Failed 为终态，由网关回调驱动。
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

// Payment 与订单一一对应，和订单同一事务创建。
type Payment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID       uint            `gorm:"not null;uniqueIndex" json:"order_id"`
	UserID        uint            `gorm:"not null;index" json:"user_id"`
	ShopID        uint            `gorm:"not null;index" json:"shop_id"`
	TransactionID string          `gorm:"size:64;uniqueIndex;not null" json:"transaction_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method        PaymentMethod   `gorm:"size:16;not null" json:"method"`
	Status        PaymentStatus   `gorm:"size:16;not null;default:Pending;index" json:"status"`
	// GatewayResponse 网关校验结果原文，排查用。
	GatewayResponse string `gorm:"type:text" json:"-"`
}

func (Payment) TableName() string { return "payments" }
