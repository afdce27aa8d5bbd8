package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product 商品：基础价、库存、上下架状态、所属店铺。
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ShopID   uint            `gorm:"not null;index" json:"shop_id"`
	Name     string          `gorm:"size:128;not null" json:"name"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	// Stock 只允许通过 stock.Ledger 的条件更新扣减，保证 >= 0。
	Stock    int64 `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	IsActive bool  `gorm:"not null;default:true" json:"is_active"`
}

func (Product) TableName() string { return "products" }

// Shop 店铺，一个用户最多一个。
type Shop struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID  uint   `gorm:"not null;uniqueIndex" json:"owner_id"`
	Name     string `gorm:"size:128;not null" json:"name"`
	IsActive bool   `gorm:"not null;default:true" json:"is_active"`
}

func (Shop) TableName() string { return "shops" }

// User 买家/店主。鉴权不在本服务内，这里只保存发通知需要的资料。
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Name  string `gorm:"size:128;not null" json:"name"`
	Email string `gorm:"size:255;not null;uniqueIndex" json:"email"`
}

func (User) TableName() string { return "users" }
