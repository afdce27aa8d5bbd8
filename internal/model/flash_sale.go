package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FlashSale 商品限时折扣。记录存在即生效，没有时间窗；同一商品只保留第一次写入的折扣。
type FlashSale struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProductID          uint            `gorm:"not null;uniqueIndex" json:"product_id"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"discount_percentage"`
	CreatedBy          uint            `gorm:"not null" json:"created_by"`
}

func (FlashSale) TableName() string { return "flash_sales" }

// OfferPrice 折后价 = price × (1 − pct/100)。
func (f FlashSale) OfferPrice(price decimal.Decimal) decimal.Decimal {
	return ApplyPercentageOff(price, f.DiscountPercentage)
}

var hundred = decimal.NewFromInt(100)

// ApplyPercentageOff 返回 base 扣除 pct% 之后的价格，保留两位小数。
func ApplyPercentageOff(base, pct decimal.Decimal) decimal.Decimal {
	factor := hundred.Sub(pct).Div(hundred)
	return base.Mul(factor).Round(2)
}
