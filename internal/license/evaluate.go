package license

import (
	"time"

	"automation-license-server/internal/model"
)

// Verdict 根据设备记录计算出的许可结论
type Verdict struct {
	IsValid   bool
	Status    string
	PlanID    string
	ExpiresAt *time.Time
}

// Evaluate 有效条件：试用中且试用未结束，或订阅为 active 且当前周期未结束。
// 试用到期是绝对的，没有宽限期。订阅 active 但缺少周期结束时间时不视为有效。
// 管理员暂停的设备一律无效，不论订阅状态。
func Evaluate(d *model.Device, now time.Time) Verdict {
	v := Verdict{Status: d.Status, PlanID: d.PlanID}

	trialValid := d.Status == model.DeviceStatusTrial &&
		d.TrialEndsAt != nil && now.Before(*d.TrialEndsAt)

	subValid := d.Status != model.DeviceStatusSuspended &&
		d.SubscriptionStatus != nil &&
		*d.SubscriptionStatus == model.SubscriptionActive &&
		d.SubscriptionPeriodEnd != nil && now.Before(*d.SubscriptionPeriodEnd)

	switch {
	case trialValid && subValid:
		v.IsValid = true
		v.ExpiresAt = later(d.TrialEndsAt, d.SubscriptionPeriodEnd)
	case subValid:
		v.IsValid = true
		v.ExpiresAt = copyTime(d.SubscriptionPeriodEnd)
	case trialValid:
		v.IsValid = true
		v.ExpiresAt = copyTime(d.TrialEndsAt)
	default:
		// 无效时仍返回相关的到期时间，方便客户端提示
		if d.SubscriptionStatus != nil && d.SubscriptionPeriodEnd != nil {
			v.ExpiresAt = copyTime(d.SubscriptionPeriodEnd)
		} else {
			v.ExpiresAt = copyTime(d.TrialEndsAt)
		}
	}
	return v
}

func later(a, b *time.Time) *time.Time {
	if a.After(*b) {
		return copyTime(a)
	}
	return copyTime(b)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
