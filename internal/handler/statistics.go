package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"automation-license-server/internal/database"
	"automation-license-server/internal/license"
	"automation-license-server/internal/model"
)

const dateLayout = "2006-01-02"

// statsRange 解析 start_date / end_date，默认最近 30 天，结束日当天包含在内
func statsRange(c *fiber.Ctx, now time.Time) (time.Time, time.Time, string) {
	start := now.AddDate(0, 0, -30)
	end := now

	if s := c.Query("start_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return start, end, "start_date"
		}
		start = t
	}
	if s := c.Query("end_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return start, end, "end_date"
		}
		end = t.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, ""
}

// HandleDeviceStatistics 设备、订阅和验证统计
func HandleDeviceStatistics(c *fiber.Ctx) error {
	now := time.Now().UTC()
	start, end, badField := statsRange(c, now)
	if badField != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "日期格式错误",
			"errors": []fiber.Map{
				{"field": badField, "message": "日期格式应为 YYYY-MM-DD"},
			},
		})
	}

	stats := &model.DeviceStatistics{
		DevicesByStatus:    make(map[string]int64),
		DevicesByPlan:      make(map[string]int64),
		DailyVerifications: make([]model.DailyVerifications, 0),
	}

	devices := func() *gorm.DB { return database.DB.Model(&model.Device{}) }

	counts := []struct {
		query *gorm.DB
		dest  *int64
		fail  string
	}{
		{devices(), &stats.TotalDevices, "获取设备总数失败"},
		// 订阅有效：状态 active 且周期未结束
		{devices().Where("subscription_status = ? AND subscription_period_end > ?", model.SubscriptionActive, now),
			&stats.ActiveSubscriptions, "获取订阅统计失败"},
		// 24小时内结束的试用
		{devices().Where("status = ? AND trial_ends_at > ? AND trial_ends_at <= ?", model.DeviceStatusTrial, now, now.Add(24*time.Hour)),
			&stats.TrialsEndingSoon, "获取试用统计失败"},
	}
	for _, q := range counts {
		if err := q.query.Count(q.dest).Error; err != nil {
			return adminError(c, fiber.StatusInternalServerError, q.fail)
		}
	}

	if err := groupCount(devices(), "status", stats.DevicesByStatus); err != nil {
		return adminError(c, fiber.StatusInternalServerError, "获取状态统计失败")
	}
	if err := groupCount(devices(), "plan_id", stats.DevicesByPlan); err != nil {
		return adminError(c, fiber.StatusInternalServerError, "获取套餐统计失败")
	}

	daily, err := dailyVerifications(start, end)
	if err != nil {
		return adminError(c, fiber.StatusInternalServerError, "获取每日验证统计失败")
	}
	stats.DailyVerifications = append(stats.DailyVerifications, daily...)

	if verifier != nil {
		stats.Cache = verifier.CacheStats()
	}

	return c.JSON(fiber.Map{
		"data": stats,
		"summary": fiber.Map{
			"trial_devices":     stats.GetStatusCount(model.DeviceStatusTrial),
			"active_devices":    stats.GetStatusCount(model.DeviceStatusActive),
			"suspended_devices": stats.GetStatusCount(model.DeviceStatusSuspended),
			"success_rate":      stats.GetSuccessRate(),
		},
	})
}

// groupCount 按列分组计数写入 out
func groupCount(db *gorm.DB, column string, out map[string]int64) error {
	var rows []struct {
		GroupKey string
		Count    int64
	}
	if err := db.Select(column + " as group_key, count(*) as count").Group(column).Scan(&rows).Error; err != nil {
		return err
	}
	for _, r := range rows {
		out[r.GroupKey] = r.Count
	}
	return nil
}

// dailyVerifications 区间内每天的验证次数，日期无法解析的行跳过
func dailyVerifications(start, end time.Time) ([]model.DailyVerifications, error) {
	var rows []struct {
		Day    string
		Total  int64
		Valid  int64
		Failed int64
	}
	err := database.DB.Model(&model.DeviceAudit{}).
		Select("CAST(DATE(timestamp) AS TEXT) as day, COUNT(*) as total, "+
			"SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END) as valid, "+
			"SUM(CASE WHEN outcome <> ? THEN 1 ELSE 0 END) as failed",
			license.OutcomeValid, license.OutcomeValid).
		Where("endpoint = ? AND timestamp BETWEEN ? AND ?", license.EndpointVerify, start, end).
		Group("day").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.DailyVerifications, 0, len(rows))
	for _, r := range rows {
		day, err := time.Parse(dateLayout, r.Day)
		if err != nil {
			continue
		}
		out = append(out, model.DailyVerifications{Date: day, Total: r.Total, Valid: r.Valid, Failed: r.Failed})
	}
	return out, nil
}
