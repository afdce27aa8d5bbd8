package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DiscountType string

const (
	DiscountFlat       DiscountType = "Flat"
	DiscountPercentage DiscountType = "Percentage"
)

func (t DiscountType) Valid() bool {
	return t == DiscountFlat || t == DiscountPercentage
}

// Coupon 优惠券。MaxDiscountAmount 只对百分比券生效，nil 表示不封顶。
type Coupon struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Code              string           `gorm:"size:64;uniqueIndex;not null" json:"code"`
	DiscountType      DiscountType     `gorm:"size:16;not null" json:"discount_type"`
	DiscountValue     decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `gorm:"type:decimal(12,2)" json:"max_discount_amount"`
	MinOrderAmount    decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"min_order_amount"`
	StartDate         time.Time        `gorm:"not null" json:"start_date"`
	EndDate           time.Time        `gorm:"not null" json:"end_date"`
	IsActive          bool             `gorm:"not null;default:true" json:"is_active"`
}

func (Coupon) TableName() string { return "coupons" }

// NormalizeCouponCode 券码统一大写、去空格。
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
