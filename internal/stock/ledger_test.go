package stock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"next_mart/internal/apperr"
	"next_mart/internal/model"
	"next_mart/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T, stock int64) (*gorm.DB, model.Product) {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)

	p := model.Product{ShopID: 1, Name: "mug", Price: decimal.NewFromInt(100), Stock: stock, IsActive: true}
	require.NoError(t, db.Create(&p).Error)
	return db, p
}

func stockOf(t *testing.T, db *gorm.DB, id uint) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, db.Unscoped().First(&p, id).Error)
	return p.Stock
}

func TestReserve(t *testing.T) {
	db, p := setup(t, 3)
	ctx := context.Background()
	l := NewLedger()

	err := db.Transaction(func(tx *gorm.DB) error { return l.Reserve(ctx, tx, p.ID, 2) })
	require.NoError(t, err)
	assert.EqualValues(t, 1, stockOf(t, db, p.ID))

	err = db.Transaction(func(tx *gorm.DB) error { return l.Reserve(ctx, tx, p.ID, 2) })
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "mug")
	assert.EqualValues(t, 1, stockOf(t, db, p.ID))

	err = db.Transaction(func(tx *gorm.DB) error { return l.Reserve(ctx, tx, p.ID, 0) })
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestReserveClassifiesFailures(t *testing.T) {
	db, p := setup(t, 10)
	ctx := context.Background()
	l := NewLedger()

	require.NoError(t, db.Model(&model.Product{}).Where("id = ?", p.ID).Update("is_active", false).Error)
	err := db.Transaction(func(tx *gorm.DB) error { return l.Reserve(ctx, tx, p.ID, 1) })
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	require.NoError(t, db.Delete(&model.Product{}, p.ID).Error)
	err = db.Transaction(func(tx *gorm.DB) error { return l.Reserve(ctx, tx, p.ID, 1) })
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = db.Transaction(func(tx *gorm.DB) error { return l.Reserve(ctx, tx, 4242, 1) })
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.EqualValues(t, 10, stockOf(t, db, p.ID))
}

func TestReserveRolledBackWithTransaction(t *testing.T) {
	db, p := setup(t, 5)
	ctx := context.Background()
	l := NewLedger()

	boom := errors.New("later step failed")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := l.Reserve(ctx, tx, p.ID, 4); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 5, stockOf(t, db, p.ID))
}

func TestReserveConcurrentNeverOversells(t *testing.T) {
	const stock = 7
	db, p := setup(t, stock)
	ctx := context.Background()
	l := NewLedger()

	var (
		wg  sync.WaitGroup
		ok  atomic.Int64
		out atomic.Int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error { return l.Reserve(ctx, tx, p.ID, 1) })
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperr.ErrInsufficientStock):
				out.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, stock, ok.Load())
	assert.EqualValues(t, 40-stock, out.Load())
	assert.EqualValues(t, 0, stockOf(t, db, p.ID))
}
