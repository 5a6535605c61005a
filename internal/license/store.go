package license

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"automation-license-server/internal/device"
	"automation-license-server/internal/model"
)

// Store 设备许可记录的持久化来源，是验证的权威数据
type Store interface {
	FindByFingerprint(ctx context.Context, fp device.Fingerprint) (*model.Device, error)
}

// SubscriptionUpdate 支付回调校验通过后写入的订阅变更
type SubscriptionUpdate struct {
	Status    string     `json:"subscription_status" validate:"required"`
	PlanID    string     `json:"plan_id"`
	Provider  string     `json:"provider" validate:"omitempty,oneof=paypal stripe"`
	PeriodEnd *time.Time `json:"current_period_end"`
}

// GormStore 基于 gorm 的存储实现
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) FindByFingerprint(ctx context.Context, fp device.Fingerprint) (*model.Device, error) {
	var d model.Device
	err := s.db.WithContext(ctx).Where("fingerprint = ?", fp.String()).First(&d).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &d, nil
}

// Register 创建试用设备，试用结束时间只在这里写入一次
func (s *GormStore) Register(ctx context.Context, fp device.Fingerprint, trial time.Duration) (*model.Device, error) {
	now := s.now()
	trialEnds := now.Add(trial)
	d := &model.Device{
		Fingerprint: fp.String(),
		Status:      model.DeviceStatusTrial,
		TrialEndsAt: &trialEnds,
		PlanID:      model.PlanTrial,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Device{}).Where("fingerprint = ?", d.Fingerprint).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDeviceExists
		}
		return tx.Create(d).Error
	})
	if err != nil {
		if errors.Is(err, ErrDeviceExists) || isUniqueViolation(err) {
			return nil, ErrDeviceExists
		}
		return nil, translateError(err)
	}
	return d, nil
}

// UpdateStatus 单条语句更新设备状态
func (s *GormStore) UpdateStatus(ctx context.Context, fp device.Fingerprint, status string) (*model.Device, error) {
	if !model.IsDeviceStatus(status) {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidStatus, status)
	}

	res := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("fingerprint = ?", fp.String()).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return nil, translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindByFingerprint(ctx, fp)
}

// UpdateSubscription 在事务内写入订阅状态，并同步设备状态：
// active -> active（管理员暂停的设备保持 suspended），suspended -> suspended，cancelled/expired -> expired，pending 不改变设备状态。
func (s *GormStore) UpdateSubscription(ctx context.Context, fp device.Fingerprint, update SubscriptionUpdate) (*model.Device, error) {
	if !model.IsSubscriptionStatus(update.Status) {
		return nil, fmt.Errorf("%w: subscription status %q", ErrInvalidStatus, update.Status)
	}
	if update.PlanID != "" && !model.IsPlan(update.PlanID) {
		return nil, fmt.Errorf("%w: plan %q", ErrInvalidStatus, update.PlanID)
	}

	var d model.Device
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("fingerprint = ?", fp.String()).First(&d).Error; err != nil {
			return err
		}

		subStatus := update.Status
		d.SubscriptionStatus = &subStatus
		if update.Provider != "" {
			d.SubscriptionProvider = update.Provider
		}
		if update.PeriodEnd != nil {
			end := *update.PeriodEnd
			d.SubscriptionPeriodEnd = &end
		}
		if update.PlanID != "" {
			d.PlanID = update.PlanID
		}

		switch update.Status {
		case model.SubscriptionActive:
			if d.Status != model.DeviceStatusSuspended {
				d.Status = model.DeviceStatusActive
			}
		case model.SubscriptionSuspended:
			d.Status = model.DeviceStatusSuspended
		case model.SubscriptionCancelled, model.SubscriptionExpired:
			d.Status = model.DeviceStatusExpired
		}
		d.UpdatedAt = s.now()

		return tx.Model(&d).Select(
			"status", "subscription_status", "subscription_provider",
			"subscription_period_end", "plan_id", "updated_at",
		).Updates(&d).Error
	})
	if err != nil {
		return nil, translateError(err)
	}
	return &d, nil
}

func translateError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
