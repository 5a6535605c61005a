package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"automation-license-server/internal/config"
	"automation-license-server/internal/model"
)

var DB *gorm.DB

// Models 需要自动迁移的模型
var Models = []interface{}{
	&model.Device{},
	&model.DeviceAudit{},
	&model.User{},
	&model.OperationLog{},
	&model.LoginLog{},
}

// InitDB 按配置连接 sqlite 或 postgres，迁移表结构并确保存在管理员账户
func InitDB(cfg *config.Config, log *zap.Logger) error {
	dialector, err := openDialector(cfg.Database)
	if err != nil {
		return err
	}

	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("获取数据库实例失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移模型
	if err := DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	created, err := SeedAdmin(DB, cfg.Auth.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		log.Info("已创建默认管理员账户", zap.String("username", "admin"))
	}
	log.Info("database ready", zap.String("driver", cfg.Database.Driver))
	return nil
}

func openDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "sqlite":
		// 创建数据目录
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("创建数据目录失败: %w", err)
			}
		}
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// SeedAdmin 检查是否已存在管理员账户，不存在则创建
func SeedAdmin(db *gorm.DB, password string) (bool, error) {
	var adminCount int64
	if err := db.Model(&model.User{}).Where("username = ?", "admin").Count(&adminCount).Error; err != nil {
		return false, fmt.Errorf("查询管理员账户失败: %w", err)
	}
	if adminCount > 0 {
		return false, nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("生成密码哈希失败: %w", err)
	}

	admin := &model.User{
		Username:  "admin",
		Password:  string(hashedPassword),
		Email:     "admin@example.com",
		Role:      model.RoleAdmin,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(admin).Error; err != nil {
		return false, fmt.Errorf("创建管理员账户失败: %w", err)
	}
	return true, nil
}

func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		sqlDB.Close()
	}
}
