package stock

import (
	"context"
	"errors"
	"fmt"

	"next_mart/internal/apperr"
	"next_mart/internal/model"

	"gorm.io/gorm"
)

// Ledger 是唯一允许修改 products.stock 的地方。
// 扣减是一条条件 UPDATE（比较并扣减），不做先读后写，并发下不会超卖。
type Ledger struct{}

func NewLedger() *Ledger { return &Ledger{} }

// Reserve 在调用方事务 tx 内扣减库存，事务提交后才生效。
// 影响行数为 0 时在同一事务内回读商品，区分 ErrNotFound / ErrInvalidState / ErrInsufficientStock。
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uint, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0", apperr.ErrInvalidArgument)
	}

	res := tx.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND is_active = ? AND stock >= ?", productID, true, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("reserve stock for product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return l.classify(ctx, tx, productID, quantity)
}

func (l *Ledger) classify(ctx context.Context, tx *gorm.DB, productID uint, quantity int64) error {
	var p model.Product
	err := tx.WithContext(ctx).First(&p, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: product %d", apperr.ErrNotFound, productID)
	}
	if err != nil {
		return fmt.Errorf("load product %d: %w", productID, err)
	}
	if !p.IsActive {
		return fmt.Errorf("%w: product %d (%s) is inactive", apperr.ErrInvalidState, p.ID, p.Name)
	}
	return fmt.Errorf("%w: product %d (%s) requested %d, available %d",
		apperr.ErrInsufficientStock, p.ID, p.Name, quantity, p.Stock)
}
