package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"next_mart/internal/apperr"
	"next_mart/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Evaluate 计算优惠券对 subtotal 的折扣金额。
// 未启用、不在有效期内、未达最低金额都返回 ErrInvalidState。
// 满减券折扣不超过 subtotal；折扣券为 value% × subtotal，有封顶时取较小值。结果不为负。
// 金额按分向下取整，取整后仍不超过各上界。
func Evaluate(c model.Coupon, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !c.IsActive {
		return decimal.Zero, fmt.Errorf("%w: coupon %s is inactive", apperr.ErrInvalidState, c.Code)
	}
	if now.Before(c.StartDate) {
		return decimal.Zero, fmt.Errorf("%w: coupon %s is not valid until %s",
			apperr.ErrInvalidState, c.Code, c.StartDate.Format(time.RFC3339))
	}
	if now.After(c.EndDate) {
		return decimal.Zero, fmt.Errorf("%w: coupon %s expired at %s",
			apperr.ErrInvalidState, c.Code, c.EndDate.Format(time.RFC3339))
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return decimal.Zero, fmt.Errorf("%w: coupon %s requires a minimum order amount of %s",
			apperr.ErrInvalidState, c.Code, c.MinOrderAmount.StringFixed(2))
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case model.DiscountFlat:
		discount = decimal.Min(c.DiscountValue, subtotal)
	case model.DiscountPercentage:
		discount = subtotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscountAmount != nil {
			discount = decimal.Min(discount, *c.MaxDiscountAmount)
		}
		discount = decimal.Min(discount, subtotal)
	default:
		return decimal.Zero, fmt.Errorf("%w: coupon %s has unknown discount type %q",
			apperr.ErrInvalidState, c.Code, c.DiscountType)
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount.RoundDown(2), nil
}

var hundred = decimal.NewFromInt(100)

// CouponEvaluator 按券码查找优惠券并计算折扣。
type CouponEvaluator struct {
	db *gorm.DB
}

func NewCouponEvaluator(db *gorm.DB) *CouponEvaluator {
	return &CouponEvaluator{db: db}
}

// WithTx 返回在事务内查询的副本。
func (e *CouponEvaluator) WithTx(tx *gorm.DB) *CouponEvaluator {
	return &CouponEvaluator{db: tx}
}

// EvaluateCoupon 券码大小写不敏感。未知券码（含已删除）返回 ErrNotFound。
func (e *CouponEvaluator) EvaluateCoupon(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (model.Coupon, decimal.Decimal, error) {
	code = model.NormalizeCouponCode(code)
	if code == "" {
		return model.Coupon{}, decimal.Zero, fmt.Errorf("%w: empty coupon code", apperr.ErrInvalidArgument)
	}

	var c model.Coupon
	err := e.db.WithContext(ctx).Where("code = ?", code).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Coupon{}, decimal.Zero, fmt.Errorf("%w: coupon %s", apperr.ErrNotFound, code)
	}
	if err != nil {
		return model.Coupon{}, decimal.Zero, fmt.Errorf("load coupon %s: %w", code, err)
	}

	discount, err := Evaluate(c, subtotal, now)
	if err != nil {
		return c, decimal.Zero, err
	}
	return c, discount, nil
}
