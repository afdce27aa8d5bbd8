package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"next_mart/internal/apperr"
	"next_mart/internal/logger"
	"next_mart/internal/model"
	"next_mart/internal/pricing"
	"next_mart/internal/stock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentGateway 在线支付发起。调用发生在事务提交之后。
type PaymentGateway interface {
	InitPayment(ctx context.Context, amount decimal.Decimal, tranID string) (string, error)
}

// Notifier 订单通知，失败只记录日志。
type Notifier interface {
	NotifyOrderPlaced(ctx context.Context, o model.Order) error
	NotifyPaymentPaid(ctx context.Context, o model.Order) error
}

type Result struct {
	Order      model.Order
	Payment    model.Payment
	PaymentURL string
}

// Coordinator 在一个数据库事务内完成扣库存、复核优惠券、写订单和支付记录。
// 事务内任何一步失败都会整体回滚；网关和通知在提交之后执行，失败不影响已落库的订单。
type Coordinator struct {
	db       *gorm.DB
	ledger   *stock.Ledger
	coupons  *pricing.CouponEvaluator
	gateway  PaymentGateway
	notifier Notifier
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewCoordinator(db *gorm.DB, ledger *stock.Ledger, coupons *pricing.CouponEvaluator, gateway PaymentGateway, notifier Notifier, l *zap.Logger) *Coordinator {
	return &Coordinator{
		db:       db,
		ledger:   ledger,
		coupons:  coupons,
		gateway:  gateway,
		notifier: notifier,
		logger:   l,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Commit 落库 PricedOrder。
// 在线支付时网关失败会同时返回已落库的 Result 和 ErrGatewayUnavailable，订单保持 Pending 未支付。
func (c *Coordinator) Commit(ctx context.Context, po PricedOrder) (Result, error) {
	if len(po.Items) == 0 {
		return Result{}, fmt.Errorf("%w: order has no items", apperr.ErrInvalidArgument)
	}
	if !po.FinalAmount.Equal(finalAmount(po.Subtotal, po.Discount, po.DeliveryCharge)) {
		return Result{}, fmt.Errorf("%w: totals do not add up", apperr.ErrInvalidArgument)
	}

	var res Result
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range po.Items {
			if err := c.ledger.Reserve(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		if po.Coupon != nil {
			if err := c.recheckCoupon(ctx, tx, po); err != nil {
				return err
			}
		}

		order := model.Order{
			OrderNo:         c.orderNo(),
			UserID:          po.BuyerID,
			ShopID:          po.ShopID,
			Items:           po.Items,
			Subtotal:        po.Subtotal,
			Discount:        po.Discount,
			DeliveryCharge:  po.DeliveryCharge,
			FinalAmount:     po.FinalAmount,
			Status:          model.OrderPending,
			ShippingAddress: po.ShippingAddress,
			PaymentMethod:   po.PaymentMethod,
			PaymentStatus:   model.PaymentPending,
		}
		if po.Coupon != nil {
			order.CouponID = &po.Coupon.ID
			order.CouponCode = po.Coupon.Code
		}
		if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		payment := model.Payment{
			OrderID:       order.ID,
			UserID:        order.UserID,
			ShopID:        order.ShopID,
			TransactionID: c.newID(),
			Amount:        order.FinalAmount,
			Method:        order.PaymentMethod,
			Status:        model.PaymentPending,
		}
		if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		res = Result{Order: order, Payment: payment}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	res.Order.Payment = &res.Payment

	logger.Info(ctx, c.logger, "order committed",
		zap.String("order_no", res.Order.OrderNo),
		zap.Uint("order_id", res.Order.ID),
		zap.Uint("user_id", res.Order.UserID),
		zap.String("final_amount", res.Order.FinalAmount.StringFixed(2)),
		zap.String("payment_method", string(res.Order.PaymentMethod)),
	)

	var gatewayErr error
	if po.PaymentMethod == model.PaymentOnline {
		res.PaymentURL, gatewayErr = c.initPayment(ctx, res.Payment)
	}

	c.notifyPlaced(ctx, res.Order)
	return res, gatewayErr
}

// recheckCoupon 事务内按当前状态重新计算折扣，与定价时不一致视为并发冲突。
func (c *Coordinator) recheckCoupon(ctx context.Context, tx *gorm.DB, po PricedOrder) error {
	_, discount, err := c.coupons.WithTx(tx).EvaluateCoupon(ctx, po.Coupon.Code, po.Subtotal, c.now())
	if err != nil {
		return err
	}
	if !discount.Equal(po.Discount) {
		return fmt.Errorf("%w: coupon %s discount changed from %s to %s",
			apperr.ErrConflict, po.Coupon.Code, po.Discount.StringFixed(2), discount.StringFixed(2))
	}
	return nil
}

func (c *Coordinator) initPayment(ctx context.Context, p model.Payment) (string, error) {
	if c.gateway == nil {
		return "", fmt.Errorf("%w: no payment gateway configured", apperr.ErrGatewayUnavailable)
	}
	url, err := c.gateway.InitPayment(ctx, p.Amount, p.TransactionID)
	if err == nil && url == "" {
		err = errors.New("empty redirect url")
	}
	if err != nil {
		logger.Warn(ctx, c.logger, "payment init failed, order kept unpaid",
			zap.Uint("order_id", p.OrderID),
			zap.String("tran_id", p.TransactionID),
			zap.Error(err),
		)
		if !errors.Is(err, apperr.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %v", apperr.ErrGatewayUnavailable, err)
		}
		return "", err
	}
	return url, nil
}

// notifyPlaced 订单已提交，这里的任何错误（包括 panic）都不能影响调用方。
func (c *Coordinator) notifyPlaced(ctx context.Context, o model.Order) {
	if c.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, c.logger, "notify order placed panicked",
				zap.String("order_no", o.OrderNo), zap.Any("panic", r))
		}
	}()
	if err := c.notifier.NotifyOrderPlaced(ctx, o); err != nil {
		logger.Warn(ctx, c.logger, "notify order placed failed",
			zap.String("order_no", o.OrderNo), zap.Error(err))
	}
}

func (c *Coordinator) orderNo() string {
	id := strings.ToUpper(strings.ReplaceAll(c.newID(), "-", ""))
	return "NM" + c.now().Format("20060102") + id[:12]
}
