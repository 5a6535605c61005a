package handler

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"automation-license-server/internal/config"
	"automation-license-server/internal/license"
	"automation-license-server/internal/logging"
	"automation-license-server/internal/packager"
	"automation-license-server/internal/service"
)

var (
	verifier      *license.Verifier
	deviceStore   *license.GormStore
	packages      *packager.Service
	sheetSync     *service.SheetSyncService
	auditFeed     *license.RedisAuditRecorder
	trialDuration = 72 * time.Hour
	logger        = zap.NewNop()
)

// InitLicense 设置验证、管理写入依赖和试用期时长
func InitLicense(v *license.Verifier, store *license.GormStore, trial time.Duration) {
	verifier = v
	deviceStore = store
	if trial > 0 {
		trialDuration = trial
	}
}

func InitPackager(p *packager.Service) {
	packages = p
}

// InitAuditFeed 启用 Redis 时提供最近审计事件查询
func InitAuditFeed(feed *license.RedisAuditRecorder) {
	auditFeed = feed
}

func InitLogger(l *zap.Logger) {
	logger = logging.OrNop(l)
}

func InitSheetSync(cfg config.SheetsConfig, l *zap.Logger) (*service.SheetSyncService, error) {
	var err error
	sheetSync, err = service.NewSheetSyncService(cfg, l)
	return sheetSync, err
}

type VerifyInput struct {
	DeviceHash string `json:"device_hash" validate:"required"`
}

// HandleLicenseVerify 设备启动时调用，返回许可是否有效
func HandleLicenseVerify(c *fiber.Ctx) error {
	input := new(VerifyInput)
	if err := decodeStrict(c, input); err != nil {
		return respondError(c, err)
	}

	res, err := verifier.Verify(c.UserContext(), input.DeviceHash)
	if err != nil {
		return respondError(c, err)
	}

	resp := fiber.Map{
		"success":    true,
		"is_valid":   res.IsValid,
		"expires_at": res.ExpiresAt,
		"cached":     res.Cached,
	}
	if res.Status != "" {
		resp["status"] = res.Status
	}
	return c.JSON(resp)
}

// HandlePackageDownload 生成并下发设备的加密脚本包
func HandlePackageDownload(c *fiber.Ctx) error {
	pkg, err := packages.Build(c.UserContext(), c.Params("device_hash"))
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, pkg.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", pkg.Filename))
	c.Set("X-Bundle-Plan", pkg.PlanID)
	return c.Status(fiber.StatusOK).Send(pkg.Data)
}

// HandleCacheStats 缓存命中统计
func HandleCacheStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"cache":   verifier.CacheStats(),
	})
}
