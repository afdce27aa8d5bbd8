package router

import (
	"errors"
	"fmt"
	"net/http"

	"next_mart/internal/apperr"
	"next_mart/internal/model"
	"next_mart/internal/query"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var productFields = query.Fields{
	Search: []string{"name"},
	Filter: map[string]string{"shopId": "shop_id"},
	Sort:   map[string]string{"price": "price", "name": "name", "stock": "stock", "createdAt": "created_at"},
	MinMax: map[string]string{"price": "price"},
}

// createShop 当前用户开店，一个用户只能有一个店铺。
func createShop(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var req struct {
			Name string `json:"name" binding:"required,max=128"`
		}
		if !bindJSON(c, &req) {
			return
		}

		var n int64
		if err := d.DB.WithContext(c.Request.Context()).Model(&model.Shop{}).Where("owner_id = ?", uid).Count(&n).Error; err != nil {
			fail(c, d.Logger, err)
			return
		}
		if n > 0 {
			fail(c, d.Logger, fmt.Errorf("%w: user %d already has a shop", apperr.ErrConflict, uid))
			return
		}

		s := &model.Shop{OwnerID: uid, Name: req.Name, IsActive: true}
		if err := d.DB.WithContext(c.Request.Context()).Create(s).Error; err != nil {
			fail(c, d.Logger, err)
			return
		}
		reply(c, s)
	}
}

// createProduct 店主上架商品，店铺必须处于启用状态。
func createProduct(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var req struct {
			Name  string          `json:"name" binding:"required,max=128"`
			Price decimal.Decimal `json:"price"`
			Stock int64           `json:"stock" binding:"min=0"`
		}
		if !bindJSON(c, &req) {
			return
		}
		if !req.Price.IsPositive() {
			badRequest(c, "price must be greater than 0")
			return
		}

		shop, err := activeShopOf(c, d.DB, uid)
		if err != nil {
			fail(c, d.Logger, err)
			return
		}

		p := &model.Product{
			ShopID:   shop.ID,
			Name:     req.Name,
			Price:    req.Price.Round(2),
			Stock:    req.Stock,
			IsActive: true,
		}
		if err := d.DB.WithContext(c.Request.Context()).Create(p).Error; err != nil {
			fail(c, d.Logger, err)
			return
		}
		reply(c, p)
	}
}

// listProducts 支持 searchTerm / shopId / minPrice / maxPrice / sort / page / limit。
func listProducts(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, err := query.FromValues(c.Request.URL.Query(), productFields)
		if err != nil {
			fail(c, d.Logger, err)
			return
		}
		list, meta, err := query.Find[model.Product](c.Request.Context(), d.DB, spec)
		if err != nil {
			fail(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list, "meta": meta})
	}
}

func getProduct(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var p model.Product
		if err := d.DB.WithContext(c.Request.Context()).First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = fmt.Errorf("%w: product %d", apperr.ErrNotFound, id)
			}
			fail(c, d.Logger, err)
			return
		}
		reply(c, p)
	}
}

func activeShopOf(c *gin.Context, db *gorm.DB, ownerID uint) (model.Shop, error) {
	var s model.Shop
	err := db.WithContext(c.Request.Context()).Where("owner_id = ?", ownerID).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Shop{}, fmt.Errorf("%w: user %d has no shop", apperr.ErrNotFound, ownerID)
	}
	if err != nil {
		return model.Shop{}, err
	}
	if !s.IsActive {
		return model.Shop{}, fmt.Errorf("%w: shop %d is inactive", apperr.ErrInvalidState, s.ID)
	}
	return s, nil
}
