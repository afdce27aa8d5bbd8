package router

import (
	"fmt"
	"net/http"

	"next_mart/internal/apperr"
	"next_mart/internal/logger"
	"next_mart/internal/model"
	"next_mart/internal/query"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

var flashSaleFields = query.Fields{
	Sort: map[string]string{"id": "id", "createdAt": "created_at", "discountPercentage": "discount_percentage"},
}

// createFlashSales 店主批量给自己店铺的商品设置限时折扣。
// 同一商品已有折扣时保留旧值（先写入者生效），返回实际新增的条数。
func createFlashSales(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var req struct {
			Products           []uint          `json:"products" binding:"required,min=1,dive,min=1"`
			DiscountPercentage decimal.Decimal `json:"discount_percentage"`
		}
		if !bindJSON(c, &req) {
			return
		}
		if !req.DiscountPercentage.IsPositive() || req.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
			badRequest(c, "discount_percentage must be in (0, 100]")
			return
		}

		ctx := c.Request.Context()
		shop, err := activeShopOf(c, d.DB, uid)
		if err != nil {
			fail(c, d.Logger, err)
			return
		}

		ids := dedupe(req.Products)
		var owned int64
		if err := d.DB.WithContext(ctx).Model(&model.Product{}).
			Where("id IN ? AND shop_id = ?", ids, shop.ID).Count(&owned).Error; err != nil {
			fail(c, d.Logger, err)
			return
		}
		if int(owned) != len(ids) {
			fail(c, d.Logger, fmt.Errorf("%w: some products are missing or belong to another shop", apperr.ErrForbidden))
			return
		}

		rows := make([]model.FlashSale, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, model.FlashSale{
				ProductID:          id,
				DiscountPercentage: req.DiscountPercentage.Round(2),
				CreatedBy:          uid,
			})
		}
		res := d.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoNothing: true,
		}).Create(&rows)
		if res.Error != nil {
			fail(c, d.Logger, res.Error)
			return
		}

		if d.Discounts != nil {
			if err := d.Discounts.Invalidate(ctx, ids...); err != nil {
				// 缓存有 TTL，失效失败只会让新折扣晚一点生效
				logger.Warn(ctx, d.Logger, "invalidate discount cache failed", zap.Error(err))
			}
		}
		reply(c, gin.H{"created": res.RowsAffected, "requested": len(ids)})
	}
}

type flashSaleProduct struct {
	model.Product
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	OfferPrice         decimal.Decimal `json:"offer_price"`
}

// listFlashSales 分页列出有折扣的商品及折后价。已删除的商品不返回。
func listFlashSales(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, err := query.FromValues(c.Request.URL.Query(), flashSaleFields)
		if err != nil {
			fail(c, d.Logger, err)
			return
		}
		ctx := c.Request.Context()
		sales, meta, err := query.Find[model.FlashSale](ctx, d.DB, spec)
		if err != nil {
			fail(c, d.Logger, err)
			return
		}

		ids := make([]uint, 0, len(sales))
		for _, s := range sales {
			ids = append(ids, s.ProductID)
		}
		var products []model.Product
		if len(ids) > 0 {
			if err := d.DB.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
				fail(c, d.Logger, err)
				return
			}
		}
		byID := make(map[uint]model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		out := make([]flashSaleProduct, 0, len(sales))
		for _, s := range sales {
			p, found := byID[s.ProductID]
			if !found {
				continue
			}
			out = append(out, flashSaleProduct{
				Product:            p,
				DiscountPercentage: s.DiscountPercentage,
				OfferPrice:         s.OfferPrice(p.Price),
			})
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": out, "meta": meta})
	}
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
