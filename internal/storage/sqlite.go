package storage

import (
	"fmt"

	"next_mart/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models 需要自动建表的全部模型。
var Models = []any{
	&model.User{},
	&model.Shop{},
	&model.Product{},
	&model.FlashSale{},
	&model.Coupon{},
	&model.Order{},
	&model.Payment{},
}

// Open 连接 SQLite 并自动建表。
// SQLite 只有一个写者，这里把连接池限制为 1，事务在 Go 侧排队而不是撞上 SQLITE_BUSY。
// 因此事务内部的所有读写都必须走 tx，不能再用外层 *gorm.DB。
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return db, nil
}
