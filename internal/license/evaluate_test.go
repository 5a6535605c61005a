package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-license-server/internal/model"
)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrString(s string) *string     { return &s }

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		device     model.Device
		wantValid  bool
		wantExpiry *time.Time
	}{
		{
			name: "trial_running",
			device: model.Device{
				Status:      model.DeviceStatusTrial,
				TrialEndsAt: ptrTime(now.Add(48 * time.Hour)),
			},
			wantValid:  true,
			wantExpiry: ptrTime(now.Add(48 * time.Hour)),
		},
		{
			name: "trial_ended_one_second_ago",
			device: model.Device{
				Status:      model.DeviceStatusTrial,
				TrialEndsAt: ptrTime(now.Add(-time.Second)),
			},
			wantValid:  false,
			wantExpiry: ptrTime(now.Add(-time.Second)),
		},
		{
			name: "trial_ends_exactly_now",
			device: model.Device{
				Status:      model.DeviceStatusTrial,
				TrialEndsAt: ptrTime(now),
			},
			wantValid:  false,
			wantExpiry: ptrTime(now),
		},
		{
			name: "trial_without_end",
			device: model.Device{
				Status: model.DeviceStatusTrial,
			},
			wantValid: false,
		},
		{
			name: "expired_status_ignores_trial_window",
			device: model.Device{
				Status:      model.DeviceStatusExpired,
				TrialEndsAt: ptrTime(now.Add(time.Hour)),
			},
			wantValid:  false,
			wantExpiry: ptrTime(now.Add(time.Hour)),
		},
		{
			name: "active_subscription",
			device: model.Device{
				Status:                model.DeviceStatusActive,
				SubscriptionStatus:    ptrString(model.SubscriptionActive),
				SubscriptionPeriodEnd: ptrTime(now.Add(30 * 24 * time.Hour)),
			},
			wantValid:  true,
			wantExpiry: ptrTime(now.Add(30 * 24 * time.Hour)),
		},
		{
			name: "active_subscription_without_period_end",
			device: model.Device{
				Status:             model.DeviceStatusActive,
				SubscriptionStatus: ptrString(model.SubscriptionActive),
			},
			wantValid: false,
		},
		{
			name: "active_subscription_period_over",
			device: model.Device{
				Status:                model.DeviceStatusActive,
				SubscriptionStatus:    ptrString(model.SubscriptionActive),
				SubscriptionPeriodEnd: ptrTime(now.Add(-time.Minute)),
			},
			wantValid:  false,
			wantExpiry: ptrTime(now.Add(-time.Minute)),
		},
		{
			name: "cancelled_subscription",
			device: model.Device{
				Status:                model.DeviceStatusActive,
				SubscriptionStatus:    ptrString(model.SubscriptionCancelled),
				SubscriptionPeriodEnd: ptrTime(now.Add(time.Hour)),
			},
			wantValid:  false,
			wantExpiry: ptrTime(now.Add(time.Hour)),
		},
		{
			name: "trial_and_subscription_takes_later_expiry",
			device: model.Device{
				Status:                model.DeviceStatusTrial,
				TrialEndsAt:           ptrTime(now.Add(24 * time.Hour)),
				SubscriptionStatus:    ptrString(model.SubscriptionActive),
				SubscriptionPeriodEnd: ptrTime(now.Add(72 * time.Hour)),
			},
			wantValid:  true,
			wantExpiry: ptrTime(now.Add(72 * time.Hour)),
		},
		{
			name: "suspended_with_active_subscription",
			device: model.Device{
				Status:                model.DeviceStatusSuspended,
				SubscriptionStatus:    ptrString(model.SubscriptionActive),
				SubscriptionPeriodEnd: ptrTime(now.Add(30 * 24 * time.Hour)),
			},
			wantValid:  false,
			wantExpiry: ptrTime(now.Add(30 * 24 * time.Hour)),
		},
		{
			name: "suspended_during_trial",
			device: model.Device{
				Status:      model.DeviceStatusSuspended,
				TrialEndsAt: ptrTime(now.Add(time.Hour)),
			},
			wantValid:  false,
			wantExpiry: ptrTime(now.Add(time.Hour)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(&tt.device, now)
			assert.Equal(t, tt.wantValid, v.IsValid)
			assert.Equal(t, tt.device.Status, v.Status)
			if tt.wantExpiry == nil {
				assert.Nil(t, v.ExpiresAt)
				return
			}
			require.NotNil(t, v.ExpiresAt)
			assert.True(t, tt.wantExpiry.Equal(*v.ExpiresAt))
			if v.IsValid {
				assert.True(t, v.ExpiresAt.After(now))
			}
		})
	}
}

func TestEvaluateDoesNotAliasRecord(t *testing.T) {
	end := time.Now().Add(time.Hour)
	original := end
	d := model.Device{Status: model.DeviceStatusTrial, TrialEndsAt: &end}

	v := Evaluate(&d, time.Now())
	require.NotNil(t, v.ExpiresAt)
	*v.ExpiresAt = v.ExpiresAt.Add(time.Hour)
	assert.True(t, original.Equal(*d.TrialEndsAt))
}
