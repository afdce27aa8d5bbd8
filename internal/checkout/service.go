package checkout

import (
	"context"
	"errors"
	"fmt"

	"next_mart/internal/apperr"
	"next_mart/internal/gateway"
	"next_mart/internal/logger"
	"next_mart/internal/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentVerifier 网关回调后按交易号查询真实支付结果。
type PaymentVerifier interface {
	QueryTransaction(ctx context.Context, tranID string) (gateway.TxStatus, string, error)
}

type Service struct {
	db          *gorm.DB
	assembler   *Assembler
	coordinator *Coordinator
	verifier    PaymentVerifier
	notifier    Notifier
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewService(db *gorm.DB, assembler *Assembler, coordinator *Coordinator, verifier PaymentVerifier, notifier Notifier, l *zap.Logger) *Service {
	return &Service{
		db:          db,
		assembler:   assembler,
		coordinator: coordinator,
		verifier:    verifier,
		notifier:    notifier,
		logger:      l,
		tracer:      otel.Tracer("next_mart/checkout"),
	}
}

// CreateOrder = Assemble + Commit。
func (s *Service) CreateOrder(ctx context.Context, cart Cart) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CreateOrder")
	defer span.End()
	span.SetAttributes(
		attribute.Int("buyer_id", int(cart.BuyerID)),
		attribute.Int("lines", len(cart.Lines)),
		attribute.String("payment_method", string(cart.PaymentMethod)),
	)

	po, err := s.assemble(ctx, cart)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Info(ctx, s.logger, "order rejected", zap.Uint("buyer_id", cart.BuyerID), zap.Error(err))
		return Result{}, err
	}

	ctx, commitSpan := s.tracer.Start(ctx, "checkout.Commit")
	res, err := s.coordinator.Commit(ctx, po)
	commitSpan.End()
	if err != nil {
		span.RecordError(err)
		if res.Order.ID == 0 {
			span.SetStatus(codes.Error, err.Error())
			logger.Info(ctx, s.logger, "order commit aborted", zap.Uint("buyer_id", cart.BuyerID), zap.Error(err))
		}
		return res, err
	}
	span.SetAttributes(attribute.String("order_no", res.Order.OrderNo))
	return res, nil
}

func (s *Service) assemble(ctx context.Context, cart Cart) (PricedOrder, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Assemble")
	defer span.End()
	return s.assembler.Assemble(ctx, cart)
}

// ValidatePayment 处理网关回调：查询交易结果，Valid → Paid，Invalid → Failed，Pending 不变。
// 只有 Pending 的支付会被更新，支付记录和订单的 payment_status 在同一事务内修改。
func (s *Service) ValidatePayment(ctx context.Context, tranID string) (model.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.ValidatePayment")
	defer span.End()
	span.SetAttributes(attribute.String("tran_id", tranID))

	if tranID == "" {
		return model.Payment{}, fmt.Errorf("%w: tran_id is required", apperr.ErrInvalidArgument)
	}

	var current model.Payment
	if err := s.db.WithContext(ctx).Where("transaction_id = ?", tranID).Take(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Payment{}, fmt.Errorf("%w: payment %s", apperr.ErrNotFound, tranID)
		}
		return model.Payment{}, fmt.Errorf("load payment %s: %w", tranID, err)
	}
	if current.Status.Terminal() {
		return current, nil
	}

	txStatus, raw, err := s.verifier.QueryTransaction(ctx, tranID)
	if err != nil {
		return model.Payment{}, err
	}

	var next model.PaymentStatus
	switch txStatus {
	case gateway.TxValid:
		next = model.PaymentPaid
	case gateway.TxInvalid:
		next = model.PaymentFailed
	default:
		return current, nil
	}

	var (
		updated model.Payment
		order   model.Order
		changed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Payment{}).
			Where("id = ? AND status = ?", current.ID, model.PaymentPending).
			Updates(map[string]any{"status": next, "gateway_response": raw})
		if res.Error != nil {
			return fmt.Errorf("update payment: %w", res.Error)
		}
		changed = res.RowsAffected == 1
		if changed {
			if err := tx.Model(&model.Order{}).Where("id = ?", current.OrderID).
				Update("payment_status", next).Error; err != nil {
				return fmt.Errorf("update order payment status: %w", err)
			}
		}
		if err := tx.First(&updated, current.ID).Error; err != nil {
			return err
		}
		return tx.First(&order, current.OrderID).Error
	})
	if err != nil {
		return model.Payment{}, err
	}

	logger.Info(ctx, s.logger, "payment validated",
		zap.String("tran_id", tranID),
		zap.String("status", string(updated.Status)),
		zap.Bool("changed", changed),
	)
	if changed && updated.Status == model.PaymentPaid && s.notifier != nil {
		if err := s.notifier.NotifyPaymentPaid(ctx, order); err != nil {
			logger.Warn(ctx, s.logger, "notify payment paid failed", zap.String("order_no", order.OrderNo), zap.Error(err))
		}
	}
	return updated, nil
}

// UpdateStatus 店主修改订单状态。按状态机校验，并以当前状态为条件更新，并发修改返回 ErrConflict。
func (s *Service) UpdateStatus(ctx context.Context, orderID, actorID uint, to model.OrderStatus) (model.Order, error) {
	if !to.Valid() {
		return model.Order{}, fmt.Errorf("%w: unknown order status %q", apperr.ErrInvalidArgument, to)
	}

	var o model.Order
	if err := s.db.WithContext(ctx).First(&o, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
		}
		return model.Order{}, fmt.Errorf("load order %d: %w", orderID, err)
	}

	var shop model.Shop
	if err := s.db.WithContext(ctx).First(&shop, o.ShopID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, fmt.Errorf("%w: shop %d", apperr.ErrNotFound, o.ShopID)
		}
		return model.Order{}, fmt.Errorf("load shop %d: %w", o.ShopID, err)
	}
	if shop.OwnerID != actorID {
		return model.Order{}, fmt.Errorf("%w: order %d belongs to another shop", apperr.ErrForbidden, orderID)
	}
	if !shop.IsActive {
		return model.Order{}, fmt.Errorf("%w: shop %d is inactive", apperr.ErrInvalidState, shop.ID)
	}
	if !o.Status.CanTransition(to) {
		return model.Order{}, fmt.Errorf("%w: order %s cannot move from %s to %s",
			apperr.ErrInvalidState, o.OrderNo, o.Status, to)
	}

	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Update("status", to)
	if res.Error != nil {
		return model.Order{}, fmt.Errorf("update order %d: %w", o.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Order{}, fmt.Errorf("%w: order %s was modified concurrently", apperr.ErrConflict, o.OrderNo)
	}

	logger.Info(ctx, s.logger, "order status changed",
		zap.String("order_no", o.OrderNo),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
	)
	o.Status = to
	return o, nil
}
