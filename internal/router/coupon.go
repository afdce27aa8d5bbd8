package router

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"next_mart/internal/apperr"
	"next_mart/internal/model"
	"next_mart/internal/query"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var couponFields = query.Fields{
	Search: []string{"code"},
	Filter: map[string]string{"discountType": "discount_type"},
	Sort:   map[string]string{"code": "code", "startDate": "start_date", "endDate": "end_date", "createdAt": "created_at"},
}

type couponRequest struct {
	Code              string           `json:"code" binding:"required,max=64"`
	DiscountType      string           `json:"discount_type" binding:"required,oneof=Flat Percentage"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	MinOrderAmount    decimal.Decimal  `json:"min_order_amount"`
	StartDate         time.Time        `json:"start_date" binding:"required"`
	EndDate           time.Time        `json:"end_date" binding:"required"`
	IsActive          *bool            `json:"is_active"`
}

func (r couponRequest) toModel() (model.Coupon, error) {
	c := model.Coupon{
		Code:              model.NormalizeCouponCode(r.Code),
		DiscountType:      model.DiscountType(r.DiscountType),
		DiscountValue:     r.DiscountValue.Round(2),
		MaxDiscountAmount: roundDownCap(r.MaxDiscountAmount),
		MinOrderAmount:    r.MinOrderAmount.Round(2),
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		IsActive:          true,
	}
	if r.IsActive != nil {
		c.IsActive = *r.IsActive
	}
	return c, validateCoupon(c)
}

// roundDownCap 封顶金额按分向下取整，折扣取整后不会越过封顶。
func roundDownCap(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	r := v.RoundDown(2)
	return &r
}

func validateCoupon(c model.Coupon) error {
	switch {
	case c.Code == "":
		return fmt.Errorf("%w: code is required", apperr.ErrInvalidArgument)
	case !c.DiscountType.Valid():
		return fmt.Errorf("%w: unknown discount type %q", apperr.ErrInvalidArgument, c.DiscountType)
	case !c.DiscountValue.IsPositive():
		return fmt.Errorf("%w: discount_value must be greater than 0", apperr.ErrInvalidArgument)
	case c.DiscountType == model.DiscountPercentage && c.DiscountValue.GreaterThan(decimal.NewFromInt(100)):
		return fmt.Errorf("%w: percentage discount must be <= 100", apperr.ErrInvalidArgument)
	case c.MinOrderAmount.IsNegative():
		return fmt.Errorf("%w: min_order_amount must be >= 0", apperr.ErrInvalidArgument)
	case c.MaxDiscountAmount != nil && c.MaxDiscountAmount.IsNegative():
		return fmt.Errorf("%w: max_discount_amount must be >= 0", apperr.ErrInvalidArgument)
	case !c.EndDate.After(c.StartDate):
		return fmt.Errorf("%w: end_date must be after start_date", apperr.ErrInvalidArgument)
	}
	return nil
}

func createCoupon(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req couponRequest
		if !bindJSON(c, &req) {
			return
		}
		coupon, err := req.toModel()
		if err != nil {
			fail(c, d.Logger, err)
			return
		}

		ctx := c.Request.Context()
		var n int64
		// 软删除的券码同样占用唯一索引
		if err := d.DB.WithContext(ctx).Unscoped().Model(&model.Coupon{}).Where("code = ?", coupon.Code).Count(&n).Error; err != nil {
			fail(c, d.Logger, err)
			return
		}
		if n > 0 {
			fail(c, d.Logger, fmt.Errorf("%w: coupon %s already exists", apperr.ErrConflict, coupon.Code))
			return
		}

		active := coupon.IsActive
		if err := d.DB.WithContext(ctx).Create(&coupon).Error; err != nil {
			fail(c, d.Logger, err)
			return
		}
		// is_active 列默认 true，Create 会跳过 false 零值
		if !active {
			if err := d.DB.WithContext(ctx).Model(&coupon).Update("is_active", false).Error; err != nil {
				fail(c, d.Logger, err)
				return
			}
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": coupon})
	}
}

func listCoupons(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, err := query.FromValues(c.Request.URL.Query(), couponFields)
		if err != nil {
			fail(c, d.Logger, err)
			return
		}
		list, meta, err := query.Find[model.Coupon](c.Request.Context(), d.DB, spec)
		if err != nil {
			fail(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list, "meta": meta})
	}
}

// updateCoupon 只更新请求里出现的字段，更新后重新校验整张券。
func updateCoupon(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DiscountType      *string          `json:"discount_type" binding:"omitempty,oneof=Flat Percentage"`
			DiscountValue     *decimal.Decimal `json:"discount_value"`
			MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
			// null 和缺省无法区分，去掉封顶需显式传 true
			ClearMaxDiscount  bool             `json:"clear_max_discount_amount"`
			MinOrderAmount    *decimal.Decimal `json:"min_order_amount"`
			StartDate         *time.Time       `json:"start_date"`
			EndDate           *time.Time       `json:"end_date"`
			IsActive          *bool            `json:"is_active"`
		}
		if !bindJSON(c, &req) {
			return
		}

		ctx := c.Request.Context()
		code := model.NormalizeCouponCode(c.Param("code"))
		var coupon model.Coupon
		if err := d.DB.WithContext(ctx).Where("code = ?", code).Take(&coupon).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = fmt.Errorf("%w: coupon %s", apperr.ErrNotFound, code)
			}
			fail(c, d.Logger, err)
			return
		}

		if req.DiscountType != nil {
			coupon.DiscountType = model.DiscountType(*req.DiscountType)
		}
		if req.DiscountValue != nil {
			coupon.DiscountValue = req.DiscountValue.Round(2)
		}
		switch {
		case req.ClearMaxDiscount && req.MaxDiscountAmount != nil:
			badRequest(c, "max_discount_amount and clear_max_discount_amount are mutually exclusive")
			return
		case req.ClearMaxDiscount:
			coupon.MaxDiscountAmount = nil
		case req.MaxDiscountAmount != nil:
			coupon.MaxDiscountAmount = roundDownCap(req.MaxDiscountAmount)
		}
		if req.MinOrderAmount != nil {
			coupon.MinOrderAmount = req.MinOrderAmount.Round(2)
		}
		if req.StartDate != nil {
			coupon.StartDate = *req.StartDate
		}
		if req.EndDate != nil {
			coupon.EndDate = *req.EndDate
		}
		if req.IsActive != nil {
			coupon.IsActive = *req.IsActive
		}
		if err := validateCoupon(coupon); err != nil {
			fail(c, d.Logger, err)
			return
		}

		if err := d.DB.WithContext(ctx).Save(&coupon).Error; err != nil {
			fail(c, d.Logger, err)
			return
		}
		reply(c, coupon)
	}
}

// previewCoupon 下单前试算某张券对订单金额的折扣。
func previewCoupon(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OrderAmount decimal.Decimal `json:"order_amount"`
		}
		if !bindJSON(c, &req) {
			return
		}
		if req.OrderAmount.IsNegative() {
			badRequest(c, "order_amount must be >= 0")
			return
		}

		coupon, discount, err := d.Coupons.EvaluateCoupon(c.Request.Context(), c.Param("code"), req.OrderAmount, time.Now())
		if err != nil {
			fail(c, d.Logger, err)
			return
		}
		reply(c, gin.H{
			"coupon":          coupon,
			"order_amount":    req.OrderAmount,
			"discount_amount": discount,
			"payable":         req.OrderAmount.Sub(discount),
		})
	}
}

// deleteCoupon 软删除，已下单的订单仍保留券码快照。
func deleteCoupon(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		res := d.DB.WithContext(c.Request.Context()).Delete(&model.Coupon{}, id)
		if res.Error != nil {
			fail(c, d.Logger, res.Error)
			return
		}
		if res.RowsAffected == 0 {
			fail(c, d.Logger, fmt.Errorf("%w: coupon %d", apperr.ErrNotFound, id))
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "coupon deleted"})
	}
}
