package model

import (
	"time"
)

// DeviceAudit 设备接口访问审计记录
type DeviceAudit struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	EventID     string    `json:"event_id" gorm:"size:36;uniqueIndex"`
	Fingerprint string    `json:"device_hash" gorm:"index;size:16"`
	Endpoint    string    `json:"endpoint"` // "verify", "package", etc.
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`
}
