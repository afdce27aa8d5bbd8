package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DiscountCache 以字符串形式缓存限时折扣百分比，"0" 表示没有折扣。
type DiscountCache struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewDiscountCache(rdb *rd.Client, ttl time.Duration) *DiscountCache {
	return &DiscountCache{rdb: rdb, ttl: ttl}
}

func (c *DiscountCache) Get(ctx context.Context, productID uint) (decimal.Decimal, bool, error) {
	v, err := c.rdb.Get(ctx, FlashSaleDiscountKey(productID)).Result()
	if errors.Is(err, rd.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	pct, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false, err
	}
	return pct, true, nil
}

func (c *DiscountCache) Set(ctx context.Context, productID uint, pct decimal.Decimal) error {
	if c.ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, FlashSaleDiscountKey(productID), pct.String(), c.ttl).Err()
}

func (c *DiscountCache) Invalidate(ctx context.Context, productIDs ...uint) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, FlashSaleDiscountKey(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}
