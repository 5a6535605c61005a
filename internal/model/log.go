package model

import "time"

// OperationLog 管理员对设备记录的写操作
type OperationLog struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserID      uint      `json:"user_id" gorm:"index"`
	Action      string    `json:"action"` // "update_status", "update_subscription"
	Fingerprint string    `json:"device_hash" gorm:"index;size:16"`
	Details     string    `json:"details"`
	CreatedAt   time.Time `json:"created_at"`
}
