package handler

import (
	"github.com/gofiber/fiber/v2"

	"automation-license-server/internal/service"
)

// HandleGetLogs 管理员操作日志，支持 device_hash / action / user_id 过滤
func HandleGetLogs(c *fiber.Ctx) error {
	return respondLogs(c, service.OperationLogFilter{
		Fingerprint: c.Query("device_hash"),
		Action:      c.Query("action"),
		UserID:      uint(c.QueryInt("user_id", 0)),
	})
}

// HandleGetUserLogs 当前登录账户自己的操作日志
func HandleGetUserLogs(c *fiber.Ctx) error {
	return respondLogs(c, service.OperationLogFilter{UserID: c.Locals("userID").(uint)})
}

func respondLogs(c *fiber.Ctx, filter service.OperationLogFilter) error {
	page, pageSize := pagination(c)
	logs, total, err := service.GetOperationLogs(filter, page, pageSize)
	if err != nil {
		return adminError(c, fiber.StatusInternalServerError, "获取日志失败")
	}
	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
	})
}
