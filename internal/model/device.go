package model

import (
	"time"
)

// 设备许可状态
const (
	DeviceStatusTrial     = "trial"
	DeviceStatusActive    = "active"
	DeviceStatusExpired   = "expired"
	DeviceStatusSuspended = "suspended"
)

// 订阅状态
const (
	SubscriptionPending   = "pending"
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
	SubscriptionSuspended = "suspended"
)

// 套餐
const (
	PlanTrial   = "trial"
	PlanStarter = "starter"
	PlanPro     = "pro"
	PlanMax     = "max"
)

// Device 设备许可记录，指纹一经分配不可修改
type Device struct {
	ID                    uint       `json:"id" gorm:"primaryKey"`
	Fingerprint           string     `json:"device_hash" gorm:"uniqueIndex;size:16;not null"`
	Status                string     `json:"status" gorm:"not null;default:'trial'"`
	TrialEndsAt           *time.Time `json:"trial_ends_at"`
	SubscriptionStatus    *string    `json:"subscription_status"`
	SubscriptionProvider  string     `json:"subscription_provider"` // paypal, stripe
	SubscriptionPeriodEnd *time.Time `json:"subscription_period_end"`
	PlanID                string     `json:"plan_id" gorm:"not null;default:'trial'"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func IsDeviceStatus(s string) bool {
	switch s {
	case DeviceStatusTrial, DeviceStatusActive, DeviceStatusExpired, DeviceStatusSuspended:
		return true
	}
	return false
}

func IsSubscriptionStatus(s string) bool {
	switch s {
	case SubscriptionPending, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired, SubscriptionSuspended:
		return true
	}
	return false
}

func IsPlan(p string) bool {
	switch p {
	case PlanTrial, PlanStarter, PlanPro, PlanMax:
		return true
	}
	return false
}
