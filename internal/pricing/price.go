package pricing

import (
	"context"
	"errors"
	"fmt"

	"next_mart/internal/apperr"
	"next_mart/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DiscountCache 缓存商品的限时折扣百分比。零值表示该商品没有折扣（也会被缓存）。
type DiscountCache interface {
	// Get ok=false 表示未命中。
	Get(ctx context.Context, productID uint) (pct decimal.Decimal, ok bool, err error)
	Set(ctx context.Context, productID uint, pct decimal.Decimal) error
	Invalidate(ctx context.Context, productIDs ...uint) error
}

// Quote 单个商品的定价结果。Product 是读取时的快照，调用方据此检查上下架和库存。
type Quote struct {
	Product            model.Product
	DiscountPercentage decimal.Decimal
	UnitPrice          decimal.Decimal
}

type PriceResolver struct {
	db    *gorm.DB
	cache DiscountCache
}

// NewPriceResolver cache 可以为 nil，此时每次都查 flash_sales 表。
func NewPriceResolver(db *gorm.DB, cache DiscountCache) *PriceResolver {
	return &PriceResolver{db: db, cache: cache}
}

// ResolveUnitPrice 读取商品基础价，叠加限时折扣：price × (1 − pct/100)。
// 商品不存在或已软删除返回 ErrNotFound；是否上架、库存是否足够由调用方判断。
func (r *PriceResolver) ResolveUnitPrice(ctx context.Context, productID uint) (Quote, error) {
	var p model.Product
	err := r.db.WithContext(ctx).First(&p, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Quote{}, fmt.Errorf("%w: product %d", apperr.ErrNotFound, productID)
	}
	if err != nil {
		return Quote{}, fmt.Errorf("load product %d: %w", productID, err)
	}

	pct, err := r.discount(ctx, productID)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{Product: p, DiscountPercentage: pct, UnitPrice: p.Price}
	if pct.IsPositive() {
		q.UnitPrice = model.ApplyPercentageOff(p.Price, pct)
	}
	return q, nil
}

func (r *PriceResolver) discount(ctx context.Context, productID uint) (decimal.Decimal, error) {
	if r.cache != nil {
		// 缓存出错直接回源
		if pct, ok, err := r.cache.Get(ctx, productID); err == nil && ok {
			return pct, nil
		}
	}

	var fs model.FlashSale
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).Take(&fs).Error
	pct := decimal.Zero
	switch {
	case err == nil:
		pct = fs.DiscountPercentage
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return decimal.Zero, fmt.Errorf("load flash sale for product %d: %w", productID, err)
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, productID, pct)
	}
	return pct, nil
}
