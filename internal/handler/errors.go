package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"automation-license-server/internal/bundle"
	"automation-license-server/internal/device"
	"automation-license-server/internal/license"
	"automation-license-server/internal/packager"
)

var validate = validator.New()

var (
	errEmptyBody   = errors.New("request body is required")
	errInvalidBody = errors.New("invalid request body")
)

// 错误到 HTTP 状态码和对外消息的映射，按顺序匹配
var errorTable = []struct {
	err     error
	status  int
	message string
}{
	{errEmptyBody, fiber.StatusBadRequest, "Request body is required"},
	{errInvalidBody, fiber.StatusBadRequest, "Invalid request body"},
	{device.ErrInvalidFormat, fiber.StatusBadRequest, "Invalid device hash format"},
	{license.ErrNotFound, fiber.StatusNotFound, "Device not found"},
	{license.ErrDeviceExists, fiber.StatusConflict, "Device already registered"},
	{license.ErrInvalidStatus, fiber.StatusBadRequest, "Invalid status"},
	{packager.ErrLicenseInactive, fiber.StatusForbidden, "License is not active"},
	{bundle.ErrAuthenticationFailed, fiber.StatusInternalServerError, "Internal server error"},
}

// respondError 只输出固定消息，内部错误细节写日志和审计
func respondError(c *fiber.Ctx, err error) error {
	for _, entry := range errorTable {
		if errors.Is(err, entry.err) {
			return c.Status(entry.status).JSON(fiber.Map{
				"success": false,
				"error":   entry.message,
			})
		}
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "Internal server error",
	})
}

// decodeStrict 拒绝空请求体和未知字段，再做 validate 校验
func decodeStrict(c *fiber.Ctx, dst interface{}) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return errEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data", errInvalidBody)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}
