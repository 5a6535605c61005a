package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"automation-license-server/internal/database"
	"automation-license-server/internal/device"
	"automation-license-server/internal/license"
	"automation-license-server/internal/model"
	"automation-license-server/internal/service"
)

type RegisterInput struct {
	DeviceHash string `json:"device_hash" validate:"required"`
}

type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=trial active expired suspended"`
}

// HandleDeviceRegister 首次启动时登记设备并开始试用
func HandleDeviceRegister(c *fiber.Ctx) error {
	input := new(RegisterInput)
	if err := decodeStrict(c, input); err != nil {
		return respondError(c, err)
	}

	fp, err := device.Validate(input.DeviceHash)
	if err != nil {
		return respondError(c, err)
	}

	d, err := deviceStore.Register(c.UserContext(), fp, trialDuration)
	if err != nil {
		if !isClientError(err) {
			logger.Error("device registration failed", zap.String("device_hash", fp.String()), zap.Error(err))
		}
		return respondError(c, err)
	}

	syncDevice(d)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"device":  d,
	})
}

// HandleGetDevices 管理员分页查看设备，可按 status / plan_id 过滤
func HandleGetDevices(c *fiber.Ctx) error {
	page, pageSize := pagination(c)

	db := database.DB.Model(&model.Device{})
	if status := c.Query("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if plan := c.Query("plan_id"); plan != "" {
		db = db.Where("plan_id = ?", plan)
	}

	var devices []model.Device
	total, err := paginate(db, "created_at DESC", page, pageSize, &devices)
	if err != nil {
		return adminError(c, fiber.StatusInternalServerError, "获取设备列表失败")
	}

	return c.JSON(fiber.Map{
		"devices": devices,
		"total":   total,
		"page":    page,
		"size":    pageSize,
	})
}

// HandleGetDeviceAudit 设备的验证和下载记录
func HandleGetDeviceAudit(c *fiber.Ctx) error {
	fp, err := device.Validate(c.Params("hash"))
	if err != nil {
		return respondError(c, err)
	}
	page, pageSize := pagination(c)

	db := database.DB.Model(&model.DeviceAudit{}).Where("fingerprint = ?", fp.String())
	if endpoint := c.Query("endpoint"); endpoint != "" {
		db = db.Where("endpoint = ?", endpoint)
	}

	var rows []model.DeviceAudit
	total, err := paginate(db, "timestamp DESC", page, pageSize, &rows)
	if err != nil {
		return adminError(c, fiber.StatusInternalServerError, "获取审计记录失败")
	}

	return c.JSON(fiber.Map{
		"audits": rows,
		"total":  total,
		"page":   page,
	})
}

// HandleGetRecentAudit Redis 中最近的审计事件，未启用 Redis 时返回 404
func HandleGetRecentAudit(c *fiber.Ctx) error {
	if auditFeed == nil {
		return adminError(c, fiber.StatusNotFound, "未启用实时审计")
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	events, err := auditFeed.Recent(c.UserContext(), int64(limit))
	if err != nil {
		logger.Warn("failed to read audit feed", zap.Error(err))
		return adminError(c, fiber.StatusInternalServerError, "获取审计记录失败")
	}
	return c.JSON(fiber.Map{
		"events": events,
	})
}

// HandleUpdateDeviceStatus 管理员修改设备状态，例如暂停滥用设备
func HandleUpdateDeviceStatus(c *fiber.Ctx) error {
	fp, err := device.Validate(c.Params("hash"))
	if err != nil {
		return respondError(c, err)
	}
	input := new(StatusInput)
	if err := decodeStrict(c, input); err != nil {
		return respondError(c, err)
	}

	d, err := deviceStore.UpdateStatus(c.UserContext(), fp, input.Status)
	if err != nil {
		return respondError(c, err)
	}

	afterAdminWrite(c, fp, service.ActionUpdateStatus, input, d)
	return c.JSON(fiber.Map{
		"success": true,
		"device":  d,
	})
}

// HandleUpdateSubscription 写入已校验的支付回调结果
func HandleUpdateSubscription(c *fiber.Ctx) error {
	fp, err := device.Validate(c.Params("hash"))
	if err != nil {
		return respondError(c, err)
	}
	input := new(license.SubscriptionUpdate)
	if err := decodeStrict(c, input); err != nil {
		return respondError(c, err)
	}

	d, err := deviceStore.UpdateSubscription(c.UserContext(), fp, *input)
	if err != nil {
		return respondError(c, err)
	}

	afterAdminWrite(c, fp, service.ActionUpdateSubscription, input, d)
	return c.JSON(fiber.Map{
		"success": true,
		"device":  d,
	})
}

// afterAdminWrite 写入成功后清缓存、记操作日志、同步表格
func afterAdminWrite(c *fiber.Ctx, fp device.Fingerprint, action string, details interface{}, d *model.Device) {
	verifier.Invalidate(fp)

	userID, _ := c.Locals("userID").(uint)
	if err := service.LogOperation(userID, action, fp.String(), details); err != nil {
		logger.Warn("failed to write operation log",
			zap.String("device_hash", fp.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
	syncDevice(d)
}

func syncDevice(d *model.Device) {
	if sheetSync == nil {
		return
	}
	go func(d model.Device) {
		if err := sheetSync.SyncDevice(&d); err != nil {
			logger.Warn("sheet sync failed", zap.String("device_hash", d.Fingerprint), zap.Error(err))
		}
	}(*d)
}

func isClientError(err error) bool {
	for _, entry := range errorTable {
		if entry.status < fiber.StatusInternalServerError && errors.Is(err, entry.err) {
			return true
		}
	}
	return false
}
