package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB 每次调用创建独立的内存数据库
func OpenTestDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// 自动迁移测试数据库
	if err := db.AutoMigrate(Models...); err != nil {
		return nil, err
	}
	return db, nil
}

func InitTestDB() {
	var err error
	DB, err = OpenTestDB()
	if err != nil {
		panic("failed to open test database: " + err.Error())
	}
}

func CleanTestDB() {
	Close()
}
