package handler

import (
	"github.com/gofiber/fiber/v2"

	"automation-license-server/internal/middleware"
)

// RegisterRoutes 挂载 /api/v1 下的全部路由。limiter 为 nil 时设备侧接口不限流。
func RegisterRoutes(app *fiber.App, limiter fiber.Handler) {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	api := app.Group("/api/v1")

	// 设备侧公开接口
	api.Post("/licenses/verify", limiter, HandleLicenseVerify)
	api.Get("/packages/:device_hash", limiter, HandlePackageDownload)
	api.Post("/devices/register", limiter, HandleDeviceRegister)

	// 认证路由
	auth := api.Group("/auth")
	auth.Post("/validate-token", HandleValidateToken)
	auth.Post("/change-password", middleware.Auth(), HandleChangePassword)

	// 用户路由
	users := api.Group("/users")
	users.Post("/login", limiter, HandleUserLogin)
	users.Get("/info", middleware.Auth(), HandleUserInfo)
	users.Get("/login-logs", middleware.Auth(), HandleGetLoginLogs)
	users.Get("/logs", middleware.Auth(), HandleGetUserLogs)

	// 管理员专用路由
	authRequired, adminOnly := middleware.Auth(), middleware.AdminOnly()
	api.Get("/devices", authRequired, adminOnly, HandleGetDevices)
	api.Get("/devices/statistics", authRequired, adminOnly, HandleDeviceStatistics)
	api.Get("/devices/cache", authRequired, adminOnly, HandleCacheStats)
	api.Get("/devices/:hash/audit", authRequired, adminOnly, HandleGetDeviceAudit)
	api.Put("/devices/:hash/status", authRequired, adminOnly, HandleUpdateDeviceStatus)
	api.Put("/devices/:hash/subscription", authRequired, adminOnly, HandleUpdateSubscription)
	api.Get("/audit/recent", authRequired, adminOnly, HandleGetRecentAudit)
	api.Get("/logs", authRequired, adminOnly, HandleGetLogs)
}
