package model

import "time"

// DailyVerifications 每日验证统计
type DailyVerifications struct {
	Date   time.Time `json:"date"`
	Total  int64     `json:"total"`
	Valid  int64     `json:"valid"`
	Failed int64     `json:"failed"`
}

// DeviceStatistics 设备许可统计信息
type DeviceStatistics struct {
	TotalDevices        int64                  `json:"total_devices"`
	DevicesByStatus     map[string]int64       `json:"devices_by_status"`
	DevicesByPlan       map[string]int64       `json:"devices_by_plan"`
	ActiveSubscriptions int64                  `json:"active_subscriptions"`
	TrialsEndingSoon    int64                  `json:"trials_ending_soon"`
	DailyVerifications  []DailyVerifications   `json:"daily_verifications"`
	Cache               map[string]interface{} `json:"cache,omitempty"`
}

// GetStatusCount 获取指定状态的设备数量
func (ds *DeviceStatistics) GetStatusCount(status string) int64 {
	if count, ok := ds.DevicesByStatus[status]; ok {
		return count
	}
	return 0
}

// GetPlanCount 获取指定套餐的设备数量
func (ds *DeviceStatistics) GetPlanCount(plan string) int64 {
	if count, ok := ds.DevicesByPlan[plan]; ok {
		return count
	}
	return 0
}

// GetSuccessRate 计算区间内验证通过率
func (ds *DeviceStatistics) GetSuccessRate() float64 {
	var total, valid int64
	for _, d := range ds.DailyVerifications {
		total += d.Total
		valid += d.Valid
	}
	if total == 0 {
		return 0
	}
	return float64(valid) / float64(total)
}

// GetDailyVerificationsByDate 获取指定日期的验证统计
func (ds *DeviceStatistics) GetDailyVerificationsByDate(date time.Time) *DailyVerifications {
	for i := range ds.DailyVerifications {
		d := ds.DailyVerifications[i]
		if d.Date.Year() == date.Year() &&
			d.Date.Month() == date.Month() &&
			d.Date.Day() == date.Day() {
			return &d
		}
	}
	return nil
}
