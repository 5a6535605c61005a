package service

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"automation-license-server/internal/database"
	"automation-license-server/internal/model"
)

// 操作类型
const (
	ActionUpdateStatus       = "update_status"
	ActionUpdateSubscription = "update_subscription"
)

// LogOperation 记录管理员对设备的写操作
func LogOperation(userID uint, action, fingerprint string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	log := &model.OperationLog{
		UserID:      userID,
		Action:      action,
		Fingerprint: fingerprint,
		Details:     string(detailsJSON),
		CreatedAt:   time.Now(),
	}

	return database.DB.Create(log).Error
}

// OperationLogFilter 日志查询条件，零值表示不过滤
type OperationLogFilter struct {
	UserID      uint
	Fingerprint string
	Action      string
}

func (f OperationLogFilter) apply(db *gorm.DB) *gorm.DB {
	if f.UserID != 0 {
		db = db.Where("user_id = ?", f.UserID)
	}
	if f.Fingerprint != "" {
		db = db.Where("fingerprint = ?", f.Fingerprint)
	}
	if f.Action != "" {
		db = db.Where("action = ?", f.Action)
	}
	return db
}

// GetOperationLogs 分页获取操作日志，按时间倒序
func GetOperationLogs(filter OperationLogFilter, page, pageSize int) ([]model.OperationLog, int64, error) {
	var logs []model.OperationLog
	var total int64

	if err := filter.apply(database.DB.Model(&model.OperationLog{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := filter.apply(database.DB).Order("created_at DESC").Order("id DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
