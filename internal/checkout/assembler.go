package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"next_mart/internal/apperr"
	"next_mart/internal/model"
	"next_mart/internal/pricing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CartLine struct {
	ProductID uint
	Quantity  int64
	Color     string
}

// Cart 下单请求。CouponCode 为空表示不用券。
type Cart struct {
	BuyerID         uint
	Lines           []CartLine
	CouponCode      string
	ShippingAddress string
	PaymentMethod   model.PaymentMethod
}

// PricedOrder 定价完成、尚未落库的订单。
type PricedOrder struct {
	BuyerID uint
	ShopID  uint
	Items   []model.OrderItem
	// Coupon 为 nil 表示未使用优惠券。
	Coupon          *model.Coupon
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	DeliveryCharge  decimal.Decimal
	FinalAmount     decimal.Decimal
	ShippingAddress string
	PaymentMethod   model.PaymentMethod
	PricedAt        time.Time
}

// Assembler 逐行定价并校验购物车，不修改任何库存。
type Assembler struct {
	db       *gorm.DB
	prices   *pricing.PriceResolver
	coupons  *pricing.CouponEvaluator
	delivery pricing.DeliveryCalculator
	now      func() time.Time
}

func NewAssembler(db *gorm.DB, prices *pricing.PriceResolver, coupons *pricing.CouponEvaluator, delivery pricing.DeliveryCalculator) *Assembler {
	return &Assembler{
		db:       db,
		prices:   prices,
		coupons:  coupons,
		delivery: delivery,
		now:      time.Now,
	}
}

func validateCart(cart Cart) error {
	if cart.BuyerID == 0 {
		return fmt.Errorf("%w: buyer is required", apperr.ErrInvalidArgument)
	}
	if len(cart.Lines) == 0 {
		return fmt.Errorf("%w: cart is empty", apperr.ErrInvalidArgument)
	}
	for i, l := range cart.Lines {
		if l.ProductID == 0 {
			return fmt.Errorf("%w: line %d: product is required", apperr.ErrInvalidArgument, i+1)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("%w: line %d: quantity must be >= 1", apperr.ErrInvalidArgument, i+1)
		}
	}
	if strings.TrimSpace(cart.ShippingAddress) == "" {
		return fmt.Errorf("%w: shipping address is required", apperr.ErrInvalidArgument)
	}
	if !cart.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", apperr.ErrInvalidArgument, cart.PaymentMethod)
	}
	return nil
}

// Assemble 按输入顺序处理每一行：定价 → 上架校验 → 库存校验（只读，不预占）→ 累加小计 → 同店校验。
// 之后计算优惠券、运费和应付金额。任何一步失败整单失败。
func (a *Assembler) Assemble(ctx context.Context, cart Cart) (PricedOrder, error) {
	if err := validateCart(cart); err != nil {
		return PricedOrder{}, err
	}

	po := PricedOrder{
		BuyerID:         cart.BuyerID,
		Items:           make([]model.OrderItem, 0, len(cart.Lines)),
		Subtotal:        decimal.Zero,
		Discount:        decimal.Zero,
		ShippingAddress: strings.TrimSpace(cart.ShippingAddress),
		PaymentMethod:   cart.PaymentMethod,
		PricedAt:        a.now(),
	}

	for _, line := range cart.Lines {
		q, err := a.prices.ResolveUnitPrice(ctx, line.ProductID)
		if err != nil {
			return PricedOrder{}, err
		}
		p := q.Product

		if !p.IsActive {
			return PricedOrder{}, fmt.Errorf("%w: product %d (%s) is inactive", apperr.ErrInvalidState, p.ID, p.Name)
		}
		if line.Quantity > p.Stock {
			return PricedOrder{}, fmt.Errorf("%w: product %d (%s) requested %d, available %d",
				apperr.ErrInsufficientStock, p.ID, p.Name, line.Quantity, p.Stock)
		}

		item := model.OrderItem{
			ProductID: p.ID,
			Quantity:  line.Quantity,
			UnitPrice: q.UnitPrice,
			Color:     line.Color,
		}
		po.Items = append(po.Items, item)
		po.Subtotal = po.Subtotal.Add(item.LineTotal())

		if po.ShopID == 0 {
			if err := a.checkShop(ctx, p.ShopID); err != nil {
				return PricedOrder{}, err
			}
			po.ShopID = p.ShopID
		} else if p.ShopID != po.ShopID {
			return PricedOrder{}, fmt.Errorf("%w: product %d belongs to shop %d, cart is for shop %d",
				apperr.ErrMultiShopCart, p.ID, p.ShopID, po.ShopID)
		}
	}

	if code := model.NormalizeCouponCode(cart.CouponCode); code != "" {
		c, discount, err := a.coupons.EvaluateCoupon(ctx, code, po.Subtotal, po.PricedAt)
		if err != nil {
			return PricedOrder{}, err
		}
		po.Coupon = &c
		po.Discount = discount
	}

	po.DeliveryCharge = a.delivery.Calculate(po.ShippingAddress, len(po.Items))
	po.FinalAmount = finalAmount(po.Subtotal, po.Discount, po.DeliveryCharge)
	return po, nil
}

func (a *Assembler) checkShop(ctx context.Context, shopID uint) error {
	var s model.Shop
	err := a.db.WithContext(ctx).First(&s, shopID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: shop %d", apperr.ErrNotFound, shopID)
	}
	if err != nil {
		return fmt.Errorf("load shop %d: %w", shopID, err)
	}
	if !s.IsActive {
		return fmt.Errorf("%w: shop %d (%s) is inactive", apperr.ErrInvalidState, s.ID, s.Name)
	}
	return nil
}

// finalAmount = subtotal − discount + delivery，且不低于运费。
func finalAmount(subtotal, discount, delivery decimal.Decimal) decimal.Decimal {
	goods := subtotal.Sub(discount)
	if goods.IsNegative() {
		goods = decimal.Zero
	}
	return goods.Add(delivery)
}
